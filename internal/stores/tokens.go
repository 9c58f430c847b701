package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	tokenRecordVersionV1 = 1
	maxTxRetries         = 4
)

var (
	ErrTokenNotFound         = errors.New("token record not found")
	ErrTokenExpired          = errors.New("token record expired")
	ErrTokenRedisUnavailable = errors.New("token redis unavailable")
)

// TokenRecord is the stored side of an opaque token. The token itself is never stored;
// records are keyed by its hash.
type TokenRecord struct {
	Owner    string
	IssuedAt int64 // unix nanoseconds
	TTL      time.Duration
}

// Expired reports whether the record's TTL has elapsed at now. A zero TTL never expires.
func (r *TokenRecord) Expired(now time.Time) bool {
	if r.TTL <= 0 {
		return false
	}
	return now.UnixNano()-r.IssuedAt > int64(r.TTL)
}

// TokenStore keeps token records and a per-owner index in Redis.
//
//	<prefix>:t:<hash>   binary TokenRecord
//	<prefix>:o:<owner>  set of hashes owned by owner
type TokenStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewTokenStore(redisClient redis.UniversalClient, prefix string) *TokenStore {
	if prefix == "" {
		prefix = "atk"
	}
	return &TokenStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *TokenStore) tokenKey(hash string) string {
	return s.prefix + ":t:" + hash
}

func (s *TokenStore) ownerKey(owner string) string {
	return s.prefix + ":o:" + owner
}

// keyTTL keeps an expired record readable for one more TTL so that access observes the
// expiry and deletes it. Past 2×TTL Redis has evicted the key and the token reads as
// ErrTokenNotFound, the same as one that never existed.
func keyTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return 2 * ttl
}

// Save stores record under hash. With replace set, every other token of the same owner
// is deleted in the same transaction.
func (s *TokenStore) Save(ctx context.Context, hash string, record *TokenRecord, replace bool) error {
	encoded, err := encodeTokenRecord(record)
	if err != nil {
		return err
	}

	tokenKey := s.tokenKey(hash)
	ownerKey := s.ownerKey(record.Owner)

	if !replace {
		_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, tokenKey, encoded, keyTTL(record.TTL))
			pipe.SAdd(ctx, ownerKey, hash)
			return nil
		})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
		}
		return nil
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			previous, err := tx.SMembers(ctx, ownerKey).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, h := range previous {
					pipe.Del(ctx, s.tokenKey(h))
				}
				pipe.Del(ctx, ownerKey)
				pipe.Set(ctx, tokenKey, encoded, keyTTL(record.TTL))
				pipe.SAdd(ctx, ownerKey, hash)
				return nil
			})
			return err
		}, ownerKey)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
		}
		return nil
	}

	return fmt.Errorf("%w: owner index contention", ErrTokenRedisUnavailable)
}

// Consume deletes and returns the record under hash. Concurrent callers race on a
// WATCH of the token key, so at most one of them receives the record; the others see
// ErrTokenNotFound. An expired record is deleted and reported as ErrTokenExpired.
func (s *TokenStore) Consume(ctx context.Context, hash string, now time.Time) (*TokenRecord, error) {
	key := s.tokenKey(hash)

	for i := 0; i < maxTxRetries; i++ {
		var matched *TokenRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeTokenRecord(data)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				pipe.SRem(ctx, s.ownerKey(record.Owner), hash)
				return nil
			})
			if err != nil {
				return err
			}

			if record.Expired(now) {
				return ErrTokenExpired
			}
			matched = record
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, ErrTokenNotFound
			case errors.Is(err, ErrTokenExpired):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
			}
		}

		return matched, nil
	}

	return nil, ErrTokenNotFound
}

// Get returns the record under hash without consuming it. An expired record is deleted
// and reported as ErrTokenExpired.
func (s *TokenStore) Get(ctx context.Context, hash string, now time.Time) (*TokenRecord, error) {
	data, err := s.redis.Get(ctx, s.tokenKey(hash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
	}

	record, err := decodeTokenRecord(data)
	if err != nil {
		return nil, err
	}
	if record.Expired(now) {
		if err := s.remove(ctx, hash, record.Owner); err != nil {
			return nil, err
		}
		return nil, ErrTokenExpired
	}

	return record, nil
}

// Delete removes the record under hash. Deleting a missing record is not an error.
func (s *TokenStore) Delete(ctx context.Context, hash string) error {
	data, err := s.redis.Get(ctx, s.tokenKey(hash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
	}

	record, err := decodeTokenRecord(data)
	if err != nil {
		return err
	}
	return s.remove(ctx, hash, record.Owner)
}

// DeleteOwner removes every record owned by owner.
func (s *TokenStore) DeleteOwner(ctx context.Context, owner string) error {
	ownerKey := s.ownerKey(owner)
	hashes, err := s.redis.SMembers(ctx, ownerKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, h := range hashes {
			pipe.Del(ctx, s.tokenKey(h))
		}
		pipe.Del(ctx, ownerKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
	}
	return nil
}

// Count returns the number of indexed tokens for owner.
func (s *TokenStore) Count(ctx context.Context, owner string) (int64, error) {
	n, err := s.redis.SCard(ctx, s.ownerKey(owner)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
	}
	return n, nil
}

func (s *TokenStore) remove(ctx context.Context, hash, owner string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.tokenKey(hash))
		pipe.SRem(ctx, s.ownerKey(owner), hash)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
	}
	return nil
}

func encodeTokenRecord(record *TokenRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(tokenRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, record.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, int64(record.TTL)); err != nil {
		return nil, err
	}

	if len(record.Owner) > 65535 {
		return nil, errors.New("token record owner too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Owner))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Owner)

	return buf.Bytes(), nil
}

func decodeTokenRecord(data []byte) (*TokenRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != tokenRecordVersionV1 {
		return nil, errors.New("invalid token record version")
	}

	record := &TokenRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.IssuedAt); err != nil {
		return nil, err
	}

	var ttl int64
	if err := binary.Read(reader, binary.BigEndian, &ttl); err != nil {
		return nil, err
	}
	record.TTL = time.Duration(ttl)

	var ownerLen uint16
	if err := binary.Read(reader, binary.BigEndian, &ownerLen); err != nil {
		return nil, err
	}

	owner := make([]byte, ownerLen)
	if _, err := io.ReadFull(reader, owner); err != nil {
		return nil, err
	}
	record.Owner = string(owner)

	return record, nil
}
