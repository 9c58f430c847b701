package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/password"
)

const userColumns = "id, identity, username, email, first_name, last_name, password_hash, password_scheme, password_cost, salt, active, activation_code, last_login, created_at"

func prefixed(columns, alias string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*authcore.User, error) {
	var (
		u              authcore.User
		username       sql.NullString
		email          sql.NullString
		scheme         string
		activationCode sql.NullString
		lastLogin      sql.NullInt64
		createdAt      int64
	)
	err := row.Scan(
		&u.ID, &u.Identity, &username, &email, &u.FirstName, &u.LastName,
		&u.Digest.Hash, &scheme, &u.Digest.Cost, &u.Digest.Salt,
		&u.Active, &activationCode, &lastLogin, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	u.Username = username.String
	u.Email = email.String
	u.Digest.Scheme = password.Scheme(scheme)
	u.ActivationCode = activationCode.String
	if lastLogin.Valid {
		u.LastLogin = time.Unix(lastLogin.Int64, 0).UTC()
	}
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &u, nil
}

// nullable stores empty strings as NULL so optional unique columns stay unconstrained.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var existsColumns = map[authcore.Field]string{
	authcore.FieldIdentity: "identity",
	authcore.FieldEmail:    "email",
	authcore.FieldUsername: "username",
}

func (s *Store) findUser(ctx context.Context, db DBTX, where string, arg any) (*authcore.User, error) {
	row := db.QueryRowContext(ctx, s.q("SELECT "+userColumns+" FROM users WHERE "+where+" = ?"), arg)
	u, err := scanUser(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return u, nil
}

// FindByIdentity returns the user logging in as identity.
func (s *Store) FindByIdentity(ctx context.Context, identity string) (*authcore.User, error) {
	return s.findUser(ctx, s.db, "identity", identity)
}

func (s *Store) FindByID(ctx context.Context, userID string) (*authcore.User, error) {
	return s.findUser(ctx, s.db, "id", userID)
}

// Exists reports whether any user holds value in field.
func (s *Store) Exists(ctx context.Context, field authcore.Field, value string) (bool, error) {
	column, ok := existsColumns[field]
	if !ok {
		return false, fmt.Errorf("%w: unknown field %q", authcore.ErrInvalidInput, field)
	}

	var one int
	err := s.db.QueryRowContext(ctx, s.q("SELECT 1 FROM users WHERE "+column+" = ? LIMIT 1"), value).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, mapErr(err)
	}
	return true, nil
}

// ListUsers returns all users, or the members of any of groupIDs, oldest first.
func (s *Store) ListUsers(ctx context.Context, groupIDs []string) ([]authcore.User, error) {
	query := "SELECT " + userColumns + " FROM users ORDER BY created_at, id"
	var args []any
	if len(groupIDs) > 0 {
		query = "SELECT DISTINCT " + prefixed(userColumns, "u") +
			" FROM users u JOIN users_groups ug ON ug.user_id = u.id" +
			" WHERE ug.group_id IN (" + placeholders(len(groupIDs)) + ")" +
			" ORDER BY u.created_at, u.id"
		for _, id := range groupIDs {
			args = append(args, id)
		}
	}

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var users []authcore.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return users, nil
}

// Create inserts user and its memberships in one transaction.
func (s *Store) Create(ctx context.Context, user *authcore.User, groupIDs []string) error {
	err := s.withTx(ctx, func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx, s.q(
			"INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
			user.ID, user.Identity, nullable(user.Username), nullable(user.Email), user.FirstName, user.LastName,
			user.Digest.Hash, string(user.Digest.Scheme), user.Digest.Cost, user.Digest.Salt,
			user.Active, nullable(user.ActivationCode), lastLoginArg(user.LastLogin), user.CreatedAt.Unix(),
		)
		if err != nil {
			return err
		}
		return s.addMemberships(ctx, tx, user.ID, groupIDs)
	})
	return mapTxErr(err)
}

func lastLoginArg(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

// Save writes every mutable column of user. A collision on identity, email or username
// returns authcore.ErrDuplicateIdentity and leaves the row unchanged.
func (s *Store) Save(ctx context.Context, user *authcore.User) error {
	err := s.withTx(ctx, func(ctx context.Context, tx DBTX) error {
		var one int
		err := tx.QueryRowContext(ctx, s.q(
			"SELECT 1 FROM users WHERE id <> ? AND (identity = ? OR email = ? OR username = ?) LIMIT 1"),
			user.ID, user.Identity, nullable(user.Email), nullable(user.Username),
		).Scan(&one)
		if err == nil {
			return authcore.ErrDuplicateIdentity
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		res, err := tx.ExecContext(ctx, s.q(
			"UPDATE users SET identity = ?, username = ?, email = ?, first_name = ?, last_name = ?,"+
				" password_hash = ?, password_scheme = ?, password_cost = ?, salt = ?, active = ?, activation_code = ?"+
				" WHERE id = ?"),
			user.Identity, nullable(user.Username), nullable(user.Email), user.FirstName, user.LastName,
			user.Digest.Hash, string(user.Digest.Scheme), user.Digest.Cost, user.Digest.Salt,
			user.Active, nullable(user.ActivationCode), user.ID,
		)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
	return mapTxErr(err)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return authcore.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.q("UPDATE users SET last_login = ? WHERE id = ?"), at.Unix(), userID)
	if err != nil {
		return mapErr(err)
	}
	return mapErr(requireRow(res))
}

// UpdateDigest swaps the password columns of userID from old to next in one conditional
// statement.
func (s *Store) UpdateDigest(ctx context.Context, userID string, old, next password.Digest) error {
	res, err := s.db.ExecContext(ctx, s.q(
		"UPDATE users SET password_hash = ?, password_scheme = ?, password_cost = ?, salt = ?"+
			" WHERE id = ? AND password_hash = ?"),
		next.Hash, string(next.Scheme), next.Cost, next.Salt, userID, old.Hash)
	if err != nil {
		return mapErr(err)
	}
	return mapErr(requireRow(res))
}

// SetActive updates the flag and the activation code in one statement.
func (s *Store) SetActive(ctx context.Context, userID string, active bool, activationCode string) error {
	res, err := s.db.ExecContext(ctx, s.q("UPDATE users SET active = ?, activation_code = ? WHERE id = ?"),
		active, nullable(activationCode), userID)
	if err != nil {
		return mapErr(err)
	}
	return mapErr(requireRow(res))
}

// ActivateByCode activates the holder of code. A code works once.
func (s *Store) ActivateByCode(ctx context.Context, code string) (string, error) {
	var userID string
	err := s.withTx(ctx, func(ctx context.Context, tx DBTX) error {
		if err := tx.QueryRowContext(ctx, s.q("SELECT id FROM users WHERE activation_code = ?"), code).Scan(&userID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, s.q(
			"UPDATE users SET active = ?, activation_code = NULL WHERE id = ? AND activation_code = ?"),
			true, userID, code)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
	if err != nil {
		return "", mapTxErr(err)
	}
	return userID, nil
}

// Delete removes the memberships of userID, then the user, in one transaction.
func (s *Store) Delete(ctx context.Context, userID string) error {
	err := s.withTx(ctx, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx, s.q("DELETE FROM users_groups WHERE user_id = ?"), userID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, s.q("DELETE FROM users WHERE id = ?"), userID)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
	return mapTxErr(err)
}
