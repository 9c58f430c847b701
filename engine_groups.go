package authcore

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// GroupAuthorizer answers membership questions and manages groups. A group reference
// is either a group id or a group name.
type GroupAuthorizer struct {
	e *Engine
}

// Groups returns the group API of e.
func (e *Engine) Groups() *GroupAuthorizer {
	return &GroupAuthorizer{e: e}
}

// resolveGroup looks ref up as an id first and as a name second.
func (e *Engine) resolveGroup(ctx context.Context, ref string) (*Group, error) {
	if ref == "" {
		return nil, ErrNotFound
	}
	g, err := e.store.FindGroup(ctx, ref)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return g, err
	}
	return e.store.FindGroupByName(ctx, ref)
}

func (e *Engine) resolveGroupIDs(ctx context.Context, refs []string) ([]string, error) {
	ids := make([]string, 0, len(refs))
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		g, err := e.resolveGroup(ctx, ref)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[g.ID]; dup {
			continue
		}
		seen[g.ID] = struct{}{}
		ids = append(ids, g.ID)
	}
	return ids, nil
}

// memberships returns the matched refs of userID as a set of both ids and names.
func (a *GroupAuthorizer) memberships(ctx context.Context, userID string) (map[string]struct{}, error) {
	groups, err := a.e.store.GroupsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, 2*len(groups))
	for _, g := range groups {
		set[g.ID] = struct{}{}
		set[g.Name] = struct{}{}
	}
	return set, nil
}

func (a *GroupAuthorizer) match(ctx context.Context, userID string, refs []string, all bool) (bool, error) {
	if a == nil || a.e == nil {
		return false, ErrEngineNotReady
	}
	if len(refs) == 0 {
		return false, nil
	}

	set, err := a.memberships(ctx, userID)
	if err != nil {
		return false, a.e.publicError(ctx, "is_member", err)
	}
	for _, ref := range refs {
		_, ok := set[ref]
		if all && !ok {
			return false, nil
		}
		if !all && ok {
			return true, nil
		}
	}
	return all, nil
}

// IsMember reports whether userID belongs to ref.
func (a *GroupAuthorizer) IsMember(ctx context.Context, userID, ref string) (bool, error) {
	return a.match(ctx, userID, []string{ref}, false)
}

// IsInAnyOf reports whether userID belongs to at least one of refs.
func (a *GroupAuthorizer) IsInAnyOf(ctx context.Context, userID string, refs ...string) (bool, error) {
	return a.match(ctx, userID, refs, false)
}

// IsInAll reports whether userID belongs to every one of refs. An empty list is false.
func (a *GroupAuthorizer) IsInAll(ctx context.Context, userID string, refs ...string) (bool, error) {
	return a.match(ctx, userID, refs, true)
}

// IsAdmin reports whether userID belongs to the configured admin group.
func (a *GroupAuthorizer) IsAdmin(ctx context.Context, userID string) (bool, error) {
	if a == nil || a.e == nil {
		return false, ErrEngineNotReady
	}
	return a.IsMember(ctx, userID, a.e.config.Identity.AdminGroup)
}

// AddMember joins userID to refs. Existing memberships are left as they are.
func (a *GroupAuthorizer) AddMember(ctx context.Context, userID string, refs ...string) error {
	if a == nil || a.e == nil {
		return ErrEngineNotReady
	}
	e := a.e

	ev := HookEvent{Operation: OpAddMember, UserID: userID}
	e.runHooks(ctx, BeforeVerify, ev)

	err := e.changeMembership(ctx, userID, refs, true)

	return e.finish(ctx, ev, err, func() map[string]string {
		return map[string]string{"groups": strings.Join(refs, ",")}
	})
}

// RemoveMember removes userID from refs, or from every group when refs is empty.
// Removing a membership that does not exist succeeds.
func (a *GroupAuthorizer) RemoveMember(ctx context.Context, userID string, refs ...string) error {
	if a == nil || a.e == nil {
		return ErrEngineNotReady
	}
	e := a.e

	ev := HookEvent{Operation: OpRemoveMember, UserID: userID}
	e.runHooks(ctx, BeforeVerify, ev)

	err := e.changeMembership(ctx, userID, refs, false)

	return e.finish(ctx, ev, err, func() map[string]string {
		if len(refs) == 0 {
			return map[string]string{"groups": "*"}
		}
		return map[string]string{"groups": strings.Join(refs, ",")}
	})
}

func (e *Engine) changeMembership(ctx context.Context, userID string, refs []string, add bool) error {
	if userID == "" {
		return ErrNotFound
	}
	if add && len(refs) == 0 {
		return ErrInvalidInput
	}

	ids, err := e.resolveGroupIDs(ctx, refs)
	if err != nil {
		return err
	}
	if add {
		if _, err := e.store.FindByID(ctx, userID); err != nil {
			return err
		}
		return e.store.AddMembership(ctx, userID, ids...)
	}
	return e.store.RemoveMembership(ctx, userID, ids...)
}

// CreateGroup stores a new group. A taken name returns [ErrDuplicateIdentity].
func (a *GroupAuthorizer) CreateGroup(ctx context.Context, name, description string) (*Group, error) {
	if a == nil || a.e == nil {
		return nil, ErrEngineNotReady
	}
	e := a.e

	ev := HookEvent{Operation: OpCreateGroup}
	e.runHooks(ctx, BeforeVerify, ev)

	g := &Group{ID: uuid.NewString(), Name: name, Description: description}
	var err error
	if name == "" {
		err = ErrInvalidInput
	} else {
		err = e.store.CreateGroup(ctx, g)
	}

	if err = e.finish(ctx, ev, err, func() map[string]string {
		return map[string]string{"group": name}
	}); err != nil {
		return nil, err
	}
	return g, nil
}

// UpdateGroup renames and redescribes groupID. The admin group cannot be renamed.
func (a *GroupAuthorizer) UpdateGroup(ctx context.Context, groupID, name, description string) (*Group, error) {
	if a == nil || a.e == nil {
		return nil, ErrEngineNotReady
	}
	e := a.e

	ev := HookEvent{Operation: OpUpdateGroup}
	e.runHooks(ctx, BeforeVerify, ev)

	g, err := e.updateGroup(ctx, groupID, name, description)

	if err = e.finish(ctx, ev, err, func() map[string]string {
		return map[string]string{"group": groupID}
	}); err != nil {
		return nil, err
	}
	return g, nil
}

func (e *Engine) updateGroup(ctx context.Context, groupID, name, description string) (*Group, error) {
	if name == "" {
		return nil, ErrInvalidInput
	}
	g, err := e.store.FindGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g.Name == e.config.Identity.AdminGroup && name != g.Name {
		return nil, ErrInvalidInput
	}

	g.Name = name
	g.Description = description
	if err := e.store.UpdateGroup(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// DeleteGroup removes ref and all of its memberships in one transaction. When any step
// fails nothing is removed and [ErrConsistencyViolation] is returned.
func (a *GroupAuthorizer) DeleteGroup(ctx context.Context, ref string) error {
	if a == nil || a.e == nil {
		return ErrEngineNotReady
	}
	e := a.e

	ev := HookEvent{Operation: OpDeleteGroup}
	e.runHooks(ctx, BeforeVerify, ev)

	g, err := e.resolveGroup(ctx, ref)
	if err == nil {
		err = e.store.DeleteGroup(ctx, g.ID)
	}

	return e.finish(ctx, ev, err, func() map[string]string {
		return map[string]string{"group": ref}
	})
}

// Group returns the group with id groupID.
func (a *GroupAuthorizer) Group(ctx context.Context, groupID string) (*Group, error) {
	if a == nil || a.e == nil {
		return nil, ErrEngineNotReady
	}
	g, err := a.e.store.FindGroup(ctx, groupID)
	if err != nil {
		return nil, a.e.publicError(ctx, "group", err)
	}
	return g, nil
}

func (a *GroupAuthorizer) GroupByName(ctx context.Context, name string) (*Group, error) {
	if a == nil || a.e == nil {
		return nil, ErrEngineNotReady
	}
	g, err := a.e.store.FindGroupByName(ctx, name)
	if err != nil {
		return nil, a.e.publicError(ctx, "group", err)
	}
	return g, nil
}

func (a *GroupAuthorizer) ListGroups(ctx context.Context) ([]Group, error) {
	if a == nil || a.e == nil {
		return nil, ErrEngineNotReady
	}
	groups, err := a.e.store.ListGroups(ctx)
	if err != nil {
		return nil, a.e.publicError(ctx, "list_groups", err)
	}
	return groups, nil
}

// GroupsForUser lists the groups userID belongs to.
func (a *GroupAuthorizer) GroupsForUser(ctx context.Context, userID string) ([]Group, error) {
	if a == nil || a.e == nil {
		return nil, ErrEngineNotReady
	}
	groups, err := a.e.store.GroupsForUser(ctx, userID)
	if err != nil {
		return nil, a.e.publicError(ctx, "groups_for_user", err)
	}
	return groups, nil
}
