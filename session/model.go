package session

// Session is the server-side record behind a session handle.
//
// Session instances are created by [Store.Establish] and treated as immutable afterwards.
type Session struct {
	SessionID string
	UserID    string
	Identity  string

	CreatedAt int64
	ExpiresAt int64
}
