package authcore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/authcore"
)

func TestGroupMembershipQueries(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	groups := env.engine.Groups()

	members, err := groups.CreateGroup(ctx, "members", "General users")
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if _, err := groups.CreateGroup(ctx, "admin", "Administrators"); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if _, err := groups.CreateGroup(ctx, "members", ""); !errors.Is(err, authcore.ErrDuplicateIdentity) {
		t.Fatalf("expected ErrDuplicateIdentity, got %v", err)
	}

	user := env.register(t, "ada@example.com")

	cases := []struct {
		name string
		fn   func() (bool, error)
		want bool
	}{
		{"member by name", func() (bool, error) { return groups.IsMember(ctx, user.ID, "members") }, true},
		{"member by id", func() (bool, error) { return groups.IsMember(ctx, user.ID, members.ID) }, true},
		{"not admin", func() (bool, error) { return groups.IsAdmin(ctx, user.ID) }, false},
		{"any of", func() (bool, error) { return groups.IsInAnyOf(ctx, user.ID, "admin", "members") }, true},
		{"all of", func() (bool, error) { return groups.IsInAll(ctx, user.ID, "admin", "members") }, false},
		{"all of empty", func() (bool, error) { return groups.IsInAll(ctx, user.ID) }, false},
		{"any of empty", func() (bool, error) { return groups.IsInAnyOf(ctx, user.ID) }, false},
	}
	for _, c := range cases {
		got, err := c.fn()
		if err != nil || got != c.want {
			t.Fatalf("%s: got %v, %v; want %v", c.name, got, err, c.want)
		}
	}

	if err := groups.AddMember(ctx, user.ID, "admin"); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if err := groups.AddMember(ctx, user.ID, "admin"); err != nil {
		t.Fatalf("repeated AddMember failed: %v", err)
	}
	if ok, _ := groups.IsAdmin(ctx, user.ID); !ok {
		t.Fatal("expected admin after AddMember")
	}
	if ok, _ := groups.IsInAll(ctx, user.ID, "admin", members.ID); !ok {
		t.Fatal("expected membership in both groups")
	}

	admins, err := env.engine.Users(ctx, "admin")
	if err != nil || len(admins) != 1 || admins[0].ID != user.ID {
		t.Fatalf("Users(admin) = %v, %v", authcore.IDsOf(admins), err)
	}

	if err := groups.RemoveMember(ctx, user.ID, "admin"); err != nil {
		t.Fatalf("RemoveMember failed: %v", err)
	}
	if err := groups.RemoveMember(ctx, user.ID, "admin"); err != nil {
		t.Fatalf("repeated RemoveMember failed: %v", err)
	}
	if err := groups.RemoveMember(ctx, user.ID); err != nil {
		t.Fatalf("RemoveMember from all failed: %v", err)
	}
	mine, err := groups.GroupsForUser(ctx, user.ID)
	if err != nil || len(mine) != 0 {
		t.Fatalf("expected no groups, got %v, %v", authcore.IDsOf(mine), err)
	}

	if err := groups.AddMember(ctx, user.ID); !errors.Is(err, authcore.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := groups.AddMember(ctx, user.ID, "ghosts"); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown group, got %v", err)
	}
	if err := groups.AddMember(ctx, "missing", "admin"); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}
}

func TestGroupUpdateAndDelete(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	groups := env.engine.Groups()

	admin, err := groups.CreateGroup(ctx, "admin", "Administrators")
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	staff, err := groups.CreateGroup(ctx, "staff", "")
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	if _, err := groups.UpdateGroup(ctx, admin.ID, "root", ""); !errors.Is(err, authcore.ErrInvalidInput) {
		t.Fatalf("expected the admin group rename to fail, got %v", err)
	}
	if _, err := groups.UpdateGroup(ctx, admin.ID, "admin", "Owners"); err != nil {
		t.Fatalf("redescribing the admin group failed: %v", err)
	}
	renamed, err := groups.UpdateGroup(ctx, staff.ID, "employees", "Payroll")
	if err != nil {
		t.Fatalf("UpdateGroup failed: %v", err)
	}
	if renamed.Name != "employees" {
		t.Fatalf("unexpected group: %+v", renamed)
	}
	if _, err := groups.UpdateGroup(ctx, staff.ID, "admin", ""); !errors.Is(err, authcore.ErrDuplicateIdentity) {
		t.Fatalf("expected ErrDuplicateIdentity, got %v", err)
	}

	user := env.register(t, "ada@example.com")
	if err := groups.AddMember(ctx, user.ID, "employees"); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if err := groups.DeleteGroup(ctx, "employees"); err != nil {
		t.Fatalf("DeleteGroup failed: %v", err)
	}
	if _, err := groups.GroupByName(ctx, "employees"); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if ok, _ := groups.IsMember(ctx, user.ID, staff.ID); ok {
		t.Fatal("membership survived group deletion")
	}
	if err := groups.DeleteGroup(ctx, "employees"); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	all, err := groups.ListGroups(ctx)
	if err != nil || len(all) != 1 || all[0].ID != admin.ID {
		t.Fatalf("ListGroups = %v, %v", authcore.IDsOf(all), err)
	}
}

func TestDeleteGroupFailureLeavesEverything(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	groups := env.engine.Groups()

	g, err := groups.CreateGroup(ctx, "staff", "")
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	user := env.register(t, "ada@example.com")
	if err := groups.AddMember(ctx, user.ID, g.ID); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}

	if _, err := env.store.DB().ExecContext(ctx,
		`CREATE TRIGGER block_group_delete BEFORE DELETE ON groups BEGIN SELECT RAISE(ABORT, 'forced'); END`); err != nil {
		t.Fatalf("creating trigger failed: %v", err)
	}

	if err := groups.DeleteGroup(ctx, g.ID); !errors.Is(err, authcore.ErrConsistencyViolation) {
		t.Fatalf("expected ErrConsistencyViolation, got %v", err)
	}
	if ok, err := groups.IsMember(ctx, user.ID, "staff"); err != nil || !ok {
		t.Fatalf("membership lost after a failed delete: ok=%v err=%v", ok, err)
	}
	if _, err := groups.Group(ctx, g.ID); err != nil {
		t.Fatalf("group lost after a failed delete: %v", err)
	}
}
