package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a token is absent, expired, or terminated.
var ErrNotFound = errors.New("session not found")

// ErrStoreUnavailable is returned when Redis is unreachable or the per-op
// deadline expires. Callers must not interpret it as "logged out".
var ErrStoreUnavailable = errors.New("session store unavailable")

const tokenBytes = 32

// subjectIndexSlack keeps the per-subject token index alive slightly longer
// than the sessions it references.
const subjectIndexSlack = time.Hour

const terminateScript = `
local existed = redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
return existed
`

var terminateLua = redis.NewScript(terminateScript)

// Config holds session store tuning parameters.
type Config struct {
	// Prefix namespaces all Redis keys written by the store.
	Prefix string

	// TTL is the idle lifetime of a session. With sliding expiration it is
	// refreshed on every successful validation.
	TTL time.Duration

	// Sliding refreshes the Redis TTL on validation, bounded by MaxLifetime.
	Sliding bool

	// MaxLifetime caps the absolute session age under sliding expiration.
	// Zero means TTL is also the absolute cap.
	MaxLifetime time.Duration

	// OpTimeout is the hard deadline applied to every Redis round trip.
	OpTimeout time.Duration
}

// Store owns all session state in Redis. No other component writes
// session keys.
type Store struct {
	redis  redis.UniversalClient
	config Config
	now    func() time.Time
}

// NewStore creates a session [Store] backed by the given Redis client.
func NewStore(client redis.UniversalClient, cfg Config) *Store {
	if cfg.Prefix == "" {
		cfg.Prefix = "pm"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &Store{
		redis:  client,
		config: cfg,
		now:    time.Now,
	}
}

// NewToken generates an opaque session token: 32 bytes of crypto/rand,
// base64url without padding.
func NewToken() (string, error) {
	var raw [tokenBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("token generation: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// NewSessionInput carries the verified external identity and the request
// metadata captured at creation time.
type NewSessionInput struct {
	Provider  string
	Subject   string
	Email     string
	Name      string
	IP        string
	UserAgent string
}

// Create persists a new session and indexes its token under the subject so
// RevokeSubject never needs a keyspace scan.
func (s *Store) Create(ctx context.Context, in NewSessionInput) (*Session, error) {
	token, err := NewToken()
	if err != nil {
		return nil, err
	}

	now := s.now()
	lifetime := s.config.TTL
	if s.config.Sliding && s.config.MaxLifetime > 0 {
		lifetime = s.config.MaxLifetime
	}

	sess := &Session{
		Token:      token,
		Provider:   in.Provider,
		Subject:    in.Subject,
		Email:      in.Email,
		Name:       in.Name,
		IP:         in.IP,
		UserAgent:  in.UserAgent,
		CreatedAt:  now.Unix(),
		ExpiresAt:  now.Add(lifetime).Unix(),
		LastSeenAt: now.Unix(),
	}

	blob, err := Encode(sess)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	subjectKey := s.subjectKey(in.Provider, in.Subject)
	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, s.sessionKey(token), blob, s.config.TTL)
	pipe.SAdd(ctx, subjectKey, token)
	pipe.Expire(ctx, subjectKey, lifetime+subjectIndexSlack)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, unavailable(err)
	}

	return sess, nil
}

// Validate resolves a token to its session. Returns [ErrNotFound] for
// absent, expired, or terminated tokens and [ErrStoreUnavailable] for
// infrastructure failures. On success it updates LastSeenAt and, when
// sliding expiration is configured, refreshes the Redis TTL up to the
// absolute lifetime cap.
//
// Concurrent validations of the same token race only on the LastSeenAt
// write-back, which is harmless: every interleaving leaves a valid blob.
func (s *Store) Validate(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrNotFound
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	key := s.sessionKey(token)
	blob, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, unavailable(err)
	}

	sess, err := Decode(blob)
	if err != nil {
		// Corrupt blob: drop it instead of serving garbage.
		_ = s.redis.Del(ctx, key).Err()
		return nil, ErrNotFound
	}
	sess.Token = token

	now := s.now()
	if now.Unix() >= sess.ExpiresAt {
		_, _ = s.terminate(ctx, sess)
		return nil, ErrNotFound
	}

	sess.LastSeenAt = now.Unix()
	updated, err := Encode(sess)
	if err != nil {
		return nil, err
	}

	// SET XX: a key that expired between the read and the write-back must
	// not be recreated, or a TTL-less orphan would linger until the next
	// validation.
	var ttl time.Duration = redis.KeepTTL
	if s.config.Sliding {
		ttl = s.config.TTL
		if remaining := sess.ExpiresIn(now); remaining < ttl {
			ttl = remaining
		}
	}
	written, err := s.redis.SetXX(ctx, key, updated, ttl).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if !written {
		return nil, ErrNotFound
	}

	return sess, nil
}

// Terminate deletes the session immediately. Idempotent: a token that does
// not exist returns (false, nil). A terminated token can never validate
// again; there is no soft-delete state to resurrect from.
func (s *Store) Terminate(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	blob, err := s.redis.Get(ctx, s.sessionKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, unavailable(err)
	}

	sess, decodeErr := Decode(blob)
	if decodeErr != nil {
		// Cannot resolve the subject index entry; drop the key itself.
		if err := s.redis.Del(ctx, s.sessionKey(token)).Err(); err != nil {
			return false, unavailable(err)
		}
		return true, nil
	}
	sess.Token = token

	return s.terminate(ctx, sess)
}

func (s *Store) terminate(ctx context.Context, sess *Session) (bool, error) {
	keys := []string{
		s.sessionKey(sess.Token),
		s.subjectKey(sess.Provider, sess.Subject),
	}
	existed, err := terminateLua.Run(ctx, s.redis, keys, sess.Token).Int64()
	if err != nil {
		return false, unavailable(err)
	}
	return existed == 1, nil
}

// RevokeSubject terminates every session of the given identity and returns
// how many were removed. Used for administrative revocation and credential
// compromise.
func (s *Store) RevokeSubject(ctx context.Context, provider, subject string) (int, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	subjectKey := s.subjectKey(provider, subject)
	tokens, err := s.redis.SMembers(ctx, subjectKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, unavailable(err)
	}
	if len(tokens) == 0 {
		return 0, nil
	}

	pipe := s.redis.TxPipeline()
	deletes := make([]*redis.IntCmd, 0, len(tokens))
	for _, token := range tokens {
		deletes = append(deletes, pipe.Del(ctx, s.sessionKey(token)))
	}
	pipe.Del(ctx, subjectKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, unavailable(err)
	}

	revoked := 0
	for _, cmd := range deletes {
		revoked += int(cmd.Val())
	}
	return revoked, nil
}

func (s *Store) sessionKey(token string) string {
	return s.config.Prefix + ":sess:" + token
}

func (s *Store) subjectKey(provider, subject string) string {
	return s.config.Prefix + ":subj:" + provider + ":" + subject
}

func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.OpTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.config.OpTimeout)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
