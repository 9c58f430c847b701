package authcore

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/password"
)

// HasIdentity is implemented by every persisted entity with a stable identifier.
type HasIdentity interface {
	EntityID() string
}

// IDsOf returns the identifiers of items in order.
func IDsOf[T HasIdentity](items []T) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.EntityID())
	}
	return ids
}

// Credential is the secret half of a user record. Identity is the login name and is
// immutable through the credential flows; Digest changes only through password flows.
type Credential struct {
	Identity string
	Digest   password.Digest
}

// User is a stored account.
type User struct {
	ID string
	Credential

	Username  string
	Email     string
	FirstName string
	LastName  string

	Active         bool
	ActivationCode string

	LastLogin time.Time
	CreatedAt time.Time
}

// EntityID implements [HasIdentity].
func (u User) EntityID() string { return u.ID }

// Group is a named set of users. Membership is stored separately.
type Group struct {
	ID          string
	Name        string
	Description string
}

// EntityID implements [HasIdentity].
func (g Group) EntityID() string { return g.ID }

// Field selects a uniquely indexed user column.
type Field string

const (
	FieldIdentity Field = "identity"
	FieldEmail    Field = "email"
	FieldUsername Field = "username"
)

// CredentialStore persists users, groups and memberships.
//
// Implementations report missing rows with [ErrNotFound], unique violations with
// [ErrDuplicateIdentity] and rolled-back multi-step writes with [ErrConsistencyViolation],
// wrapping driver errors with [ErrUnavailable] otherwise. Create, Save, Delete, DeleteGroup,
// AddMembership and RemoveMembership must be transactional.
type CredentialStore interface {
	FindByIdentity(ctx context.Context, identity string) (*User, error)
	FindByID(ctx context.Context, userID string) (*User, error)
	Exists(ctx context.Context, field Field, value string) (bool, error)
	ListUsers(ctx context.Context, groupIDs []string) ([]User, error)

	Create(ctx context.Context, user *User, groupIDs []string) error
	Save(ctx context.Context, user *User) error
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
	// UpdateDigest replaces the stored digest with next only while it still equals old,
	// touching no other column. It returns [ErrNotFound] when the user is gone or the
	// digest has changed since old was read.
	UpdateDigest(ctx context.Context, userID string, old, next password.Digest) error
	// SetActive sets the active flag and the activation code in one conditional update.
	SetActive(ctx context.Context, userID string, active bool, activationCode string) error
	// ActivateByCode activates the user holding code, clears the code and returns the user id.
	ActivateByCode(ctx context.Context, code string) (string, error)
	Delete(ctx context.Context, userID string) error

	CreateGroup(ctx context.Context, group *Group) error
	UpdateGroup(ctx context.Context, group *Group) error
	DeleteGroup(ctx context.Context, groupID string) error
	FindGroup(ctx context.Context, groupID string) (*Group, error)
	FindGroupByName(ctx context.Context, name string) (*Group, error)
	ListGroups(ctx context.Context) ([]Group, error)
	GroupsForUser(ctx context.Context, userID string) ([]Group, error)
	AddMembership(ctx context.Context, userID string, groupIDs ...string) error
	// RemoveMembership removes the listed memberships, or all of them when none are listed.
	RemoveMembership(ctx context.Context, userID string, groupIDs ...string) error
}

// AttemptTracker counts failed logins per key. It is advisory; the Engine enforces it.
type AttemptTracker interface {
	RecordFailure(ctx context.Context, key string) error
	Clear(ctx context.Context, key string) error
	IsLockedOut(ctx context.Context, key string) (bool, error)
}

// SessionStore binds logged-in users to opaque handles. CurrentUserID reports an unknown
// or expired handle with [ErrNotFound]; Destroy is idempotent.
type SessionStore interface {
	Establish(ctx context.Context, userID, identity string) (string, error)
	Destroy(ctx context.Context, handle string) error
	CurrentUserID(ctx context.Context, handle string) (string, error)
	DestroyUser(ctx context.Context, userID string) error
}

// Notifier delivers templated messages such as recovery codes. Rendering and transport
// are the implementation's concern.
type Notifier interface {
	Send(ctx context.Context, templateKey, recipient string, data map[string]string) error
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func(ctx context.Context, templateKey, recipient string, data map[string]string) error

// Send calls f.
func (f NotifierFunc) Send(ctx context.Context, templateKey, recipient string, data map[string]string) error {
	return f(ctx, templateKey, recipient, data)
}

// LoginResult is returned by [Engine.Login] and [Engine.LoginRemembered].
type LoginResult struct {
	User          *User
	SessionHandle string
	RememberToken string
}

// SessionRef names what a client holds after login.
type SessionRef struct {
	Handle        string
	RememberToken string
}

// RecoveryResult is returned by [Engine.ForgottenPassword]. Code is empty when the code
// was handed to the Notifier or when the identity is concealed.
type RecoveryResult struct {
	Identity  string
	Code      string
	Delivered bool
}

// NewPasswordResult is returned by [Engine.ForgottenPasswordComplete].
type NewPasswordResult struct {
	Identity    string
	NewPassword string
	Delivered   bool
}

// RegisterRequest describes a new account. Groups are group ids or names; when empty the
// configured default group is joined.
type RegisterRequest struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Groups    []string
}

// RegisterResult is returned by [Engine.Register]. ActivationCode is set when email
// activation is enabled and no Notifier delivered it.
type RegisterResult struct {
	User           *User
	ActivationCode string
	Delivered      bool
}

// UserUpdate lists the fields [Engine.UpdateUser] changes. Nil fields are left alone.
type UserUpdate struct {
	Identity  *string
	Username  *string
	Email     *string
	FirstName *string
	LastName  *string
	Password  *string
	Active    *bool
}
