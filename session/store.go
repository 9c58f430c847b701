package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps Redis transport failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionNotFound is returned when the handle names no live session.
var ErrSessionNotFound = errors.New("session not found")

const deleteSessionScript = `
local existed = redis.call("EXISTS", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if existed == 1 then
  redis.call("DEL", KEYS[1])
end
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// Config controls key namespace and lifetime.
type Config struct {
	Prefix     string
	TTL        time.Duration
	SigningKey []byte
	Issuer     string
}

// Store keeps sessions in Redis and hands out signed handles that reference them.
//
//	<prefix>:<sid>       binary Session
//	<prefix>u:<userID>   set of session ids
type Store struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
	signer *HandleSigner
	now    func() time.Time
}

// NewStore creates a session [Store] backed by the given Redis client.
func NewStore(redisClient redis.UniversalClient, cfg Config) (*Store, error) {
	if redisClient == nil {
		return nil, errors.New("session store requires a redis client")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("session TTL must be > 0")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "as"
	}
	signer, err := NewHandleSigner(cfg.SigningKey, cfg.Issuer)
	if err != nil {
		return nil, err
	}

	return &Store{
		redis:  redisClient,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
		signer: signer,
		now:    time.Now,
	}, nil
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + "u:" + userID
}

// Establish creates a session for userID and returns its signed handle.
func (s *Store) Establish(ctx context.Context, userID, identity string) (string, error) {
	if userID == "" {
		return "", errors.New("session user id is required")
	}

	now := s.now()
	sess := &Session{
		SessionID: uuid.NewString(),
		UserID:    userID,
		Identity:  identity,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(s.ttl).Unix(),
	}

	data, err := Encode(sess)
	if err != nil {
		return "", err
	}

	handle, err := s.signer.Sign(sess)
	if err != nil {
		return "", err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.SessionID), data, s.ttl)
		pipe.SAdd(ctx, s.userKey(userID), sess.SessionID)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return handle, nil
}

// Get resolves handle to its live session.
func (s *Store) Get(ctx context.Context, handle string) (*Session, error) {
	claims, err := s.signer.Parse(handle, false)
	if err != nil {
		return nil, err
	}

	data, err := s.redis.Get(ctx, s.key(claims.SID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.SessionID = claims.SID

	if sess.UserID != claims.Subject {
		return nil, ErrInvalidHandle
	}
	if s.now().Unix() >= sess.ExpiresAt {
		if err := s.delete(ctx, sess.UserID, sess.SessionID); err != nil {
			return nil, err
		}
		return nil, ErrSessionNotFound
	}

	return sess, nil
}

// CurrentUserID returns the user bound to handle.
func (s *Store) CurrentUserID(ctx context.Context, handle string) (string, error) {
	sess, err := s.Get(ctx, handle)
	if err != nil {
		return "", err
	}
	return sess.UserID, nil
}

// Destroy removes the session behind handle. Unknown, expired or already destroyed
// sessions are not an error; a handle with a bad signature is.
func (s *Store) Destroy(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	claims, err := s.signer.Parse(handle, true)
	if err != nil {
		return err
	}
	return s.delete(ctx, claims.Subject, claims.SID)
}

// DestroyAllForUser removes every session of userID.
//
// A session established between the read of the index and the delete survives until
// its TTL.
func (s *Store) DestroyAllForUser(ctx context.Context, userID string) error {
	userKey := s.userKey(userID)

	ids, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Del(ctx, s.key(id))
		}
		pipe.Del(ctx, userKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// ActiveSessionIDs lists indexed session ids for userID.
func (s *Store) ActiveSessionIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

func (s *Store) delete(ctx context.Context, userID, sessionID string) error {
	err := deleteSessionLua.Run(ctx, s.redis, []string{s.key(sessionID), s.userKey(userID)}, sessionID).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
