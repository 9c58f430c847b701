package sqlstore

import (
	"context"

	"github.com/MrEthical07/authcore"
)

func scanGroup(row rowScanner) (*authcore.Group, error) {
	var g authcore.Group
	if err := row.Scan(&g.ID, &g.Name, &g.Description); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Store) CreateGroup(ctx context.Context, group *authcore.Group) error {
	_, err := s.db.ExecContext(ctx, s.q("INSERT INTO groups (id, name, description) VALUES (?, ?, ?)"),
		group.ID, group.Name, group.Description)
	return mapErr(err)
}

// UpdateGroup renames group and replaces its description.
func (s *Store) UpdateGroup(ctx context.Context, group *authcore.Group) error {
	res, err := s.db.ExecContext(ctx, s.q("UPDATE groups SET name = ?, description = ? WHERE id = ?"),
		group.Name, group.Description, group.ID)
	if err != nil {
		return mapErr(err)
	}
	return mapErr(requireRow(res))
}

// DeleteGroup drops every membership of groupID and then the group. Either both happen
// or neither does.
func (s *Store) DeleteGroup(ctx context.Context, groupID string) error {
	err := s.withTx(ctx, func(ctx context.Context, tx DBTX) error {
		var one int
		if err := tx.QueryRowContext(ctx, s.q("SELECT 1 FROM groups WHERE id = ?"), groupID).Scan(&one); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.q("DELETE FROM users_groups WHERE group_id = ?"), groupID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, s.q("DELETE FROM groups WHERE id = ?"), groupID)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
	return mapTxErr(err)
}

func (s *Store) FindGroup(ctx context.Context, groupID string) (*authcore.Group, error) {
	g, err := scanGroup(s.db.QueryRowContext(ctx, s.q("SELECT id, name, description FROM groups WHERE id = ?"), groupID))
	if err != nil {
		return nil, mapErr(err)
	}
	return g, nil
}

func (s *Store) FindGroupByName(ctx context.Context, name string) (*authcore.Group, error) {
	g, err := scanGroup(s.db.QueryRowContext(ctx, s.q("SELECT id, name, description FROM groups WHERE name = ?"), name))
	if err != nil {
		return nil, mapErr(err)
	}
	return g, nil
}

func (s *Store) ListGroups(ctx context.Context) ([]authcore.Group, error) {
	return s.queryGroups(ctx, "SELECT id, name, description FROM groups ORDER BY name")
}

// GroupsForUser returns the groups userID belongs to. An unknown user has none.
func (s *Store) GroupsForUser(ctx context.Context, userID string) ([]authcore.Group, error) {
	return s.queryGroups(ctx,
		"SELECT g.id, g.name, g.description FROM groups g"+
			" JOIN users_groups ug ON ug.group_id = g.id"+
			" WHERE ug.user_id = ? ORDER BY g.name", userID)
}

func (s *Store) queryGroups(ctx context.Context, query string, args ...any) ([]authcore.Group, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var groups []authcore.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		groups = append(groups, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return groups, nil
}

// AddMembership puts userID into every group of groupIDs. Existing memberships are left
// alone, so repeating the call is harmless.
func (s *Store) AddMembership(ctx context.Context, userID string, groupIDs ...string) error {
	if len(groupIDs) == 0 {
		return nil
	}
	err := s.withTx(ctx, func(ctx context.Context, tx DBTX) error {
		return s.addMemberships(ctx, tx, userID, groupIDs)
	})
	return mapTxErr(err)
}

func (s *Store) addMemberships(ctx context.Context, tx DBTX, userID string, groupIDs []string) error {
	for _, groupID := range groupIDs {
		if _, err := tx.ExecContext(ctx, s.q(
			"INSERT INTO users_groups (user_id, group_id) VALUES (?, ?) ON CONFLICT (user_id, group_id) DO NOTHING"),
			userID, groupID); err != nil {
			return err
		}
	}
	return nil
}

// RemoveMembership takes userID out of groupIDs, or out of every group when groupIDs is
// empty. Removing an absent membership is not an error.
func (s *Store) RemoveMembership(ctx context.Context, userID string, groupIDs ...string) error {
	if len(groupIDs) == 0 {
		_, err := s.db.ExecContext(ctx, s.q("DELETE FROM users_groups WHERE user_id = ?"), userID)
		return mapErr(err)
	}

	args := make([]any, 0, len(groupIDs)+1)
	args = append(args, userID)
	for _, id := range groupIDs {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx, s.q(
		"DELETE FROM users_groups WHERE user_id = ? AND group_id IN ("+placeholders(len(groupIDs))+")"), args...)
	return mapErr(err)
}
