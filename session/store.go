package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sort"
	"time"

	"github.com/MrEthical07/goSSO/identity"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every Redis transport or command failure.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionNotFound is returned when a session does not exist or has expired.
var ErrSessionNotFound = errors.New("session not found")

// ErrInvalidTTL is returned by Create for a non-positive lifetime.
var ErrInvalidTTL = errors.New("session ttl must be positive")

const minSlidingTTL = time.Second

const deleteSessionScript = `
local existed = redis.call("EXISTS", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if existed == 1 then
  redis.call("DEL", KEYS[1])
  local count = tonumber(redis.call("GET", KEYS[3]) or "0")
  if count > 1 then
    redis.call("DECR", KEYS[3])
  elseif count == 1 then
    redis.call("DEL", KEYS[3])
  end
end
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// Options configures a [Store].
type Options struct {
	// Prefix namespaces every key the store writes.
	Prefix string
	// Codec encodes identities for new sessions. Defaults to identity.BinaryCodec.
	Codec identity.Codec
	// Sliding renews a session's Redis TTL on every Get, never past ExpiresAt.
	Sliding bool
	// IdleTimeout is the renewal window used when Sliding is set. Zero means
	// the full remaining lifetime.
	IdleTimeout time.Duration
	// JitterRange spreads renewed TTLs by up to +/- this duration.
	JitterRange time.Duration
}

// Store is a Redis-backed session store. It keeps one key per session, a set
// of session IDs per identity and a global live-session counter.
type Store struct {
	redis       redis.UniversalClient
	prefix      string
	codec       identity.Codec
	sliding     bool
	idleTimeout time.Duration
	jitterRange time.Duration
	now         func() time.Time
}

// NewStore creates a session [Store] backed by the given Redis client.
func NewStore(rdb redis.UniversalClient, opts Options) *Store {
	codec := opts.Codec
	if codec == nil {
		codec = identity.BinaryCodec{}
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "sso"
	}
	return &Store{
		redis:       rdb,
		prefix:      prefix,
		codec:       codec,
		sliding:     opts.Sliding,
		idleTimeout: opts.IdleTimeout,
		jitterRange: opts.JitterRange,
		now:         time.Now,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

func (s *Store) countKey() string {
	return s.prefix + ":count"
}

// Create stores ident under a fresh random session ID for ttl.
func (s *Store) Create(ctx context.Context, provider string, ident identity.Identity, ttl time.Duration) (*Session, error) {
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}
	user, err := identity.Clone(ident)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sess := &Session{
		SessionID: uuid.NewString(),
		Provider:  provider,
		Identity:  user,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}

	keyTTL := ttl
	if s.sliding && s.idleTimeout > 0 && s.idleTimeout < ttl {
		keyTTL = s.idleTimeout
	}
	if err := s.save(ctx, sess, keyTTL); err != nil {
		return nil, err
	}
	return sess, nil
}

// save persists a new session under its SessionID with the given Redis TTL and
// indexes it under its identity. It must run once per session ID.
func (s *Store) save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := Encode(sess, s.codec)
	if err != nil {
		return err
	}

	sessionKey := s.key(sess.SessionID)
	userKey := s.userKey(sess.UserID())
	countKey := s.countKey()

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey, data, ttl)
		pipe.SAdd(ctx, userKey, sess.SessionID)
		pipe.Incr(ctx, countKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Get returns the live session for sessionID. Expired sessions are removed and
// reported as [ErrSessionNotFound]. With sliding expiry the key TTL is renewed.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.read(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	remaining := time.Unix(sess.ExpiresAt, 0).Sub(s.now())
	if remaining <= 0 {
		if err := s.deleteSessionAndIndex(ctx, sess.UserID(), sessionID); err != nil {
			return nil, err
		}
		return nil, ErrSessionNotFound
	}

	if s.sliding {
		nextTTL, err := s.nextSlidingTTL(remaining)
		if err != nil {
			return nil, err
		}
		if err := s.redis.Expire(ctx, s.key(sessionID), nextTTL).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return sess, nil
}

// Peek fetches a session without renewing it or touching any Redis state.
func (s *Store) Peek(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.read(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.now().Unix() >= sess.ExpiresAt {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *Store) read(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
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
	sess.SessionID = sessionID
	return sess, nil
}

// Delete removes a session and its index entry. Deleting a missing session is
// not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	sess, err := s.read(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		if errors.Is(err, ErrInvalidRecord) {
			// The owner is unknown; its index entry is pruned by ActiveSessionIDs.
			return s.deleteSessionAndIndex(ctx, "", sessionID)
		}
		return err
	}
	return s.deleteSessionAndIndex(ctx, sess.UserID(), sessionID)
}

// DeleteAllForIdentity removes every session indexed under userID and returns
// how many live sessions were removed.
//
// The index is read before the delete runs, so a session created concurrently
// may survive; it expires on its own or is caught by the next call.
func (s *Store) DeleteAllForIdentity(ctx context.Context, userID string) (int, error) {
	userKey := s.userKey(userID)

	sessionIDs, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(sessionIDs) == 0 {
		return 0, nil
	}

	sessionKeys := make([]string, 0, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		sessionKeys = append(sessionKeys, s.key(sessionID))
	}

	currentCount, err := s.SessionCount(ctx)
	if err != nil {
		return 0, err
	}

	var existing int
	pipe := s.redis.Pipeline()
	existsCmds := make([]*redis.IntCmd, len(sessionKeys))
	for i, sessionKey := range sessionKeys {
		existsCmds[i] = pipe.Exists(ctx, sessionKey)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	for _, cmd := range existsCmds {
		v, cmdErr := cmd.Result()
		if cmdErr != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, cmdErr)
		}
		existing += int(v)
	}

	decrement := min(existing, currentCount)
	countKey := s.countKey()

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKeys...)
		pipe.Del(ctx, userKey)
		if decrement > 0 {
			pipe.DecrBy(ctx, countKey, int64(decrement))
		}
		if decrement == currentCount && currentCount > 0 {
			pipe.Del(ctx, countKey)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return existing, nil
}

// SessionCount returns the tracked number of stored sessions.
func (s *Store) SessionCount(ctx context.Context) (int, error) {
	count, err := s.redis.Get(ctx, s.countKey()).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// ActiveSessionIDs returns the sorted IDs of sessions still stored for userID.
// Index entries whose session key has expired are pruned.
func (s *Store) ActiveSessionIDs(ctx context.Context, userID string) ([]string, error) {
	userKey := s.userKey(userID)
	ids, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return []string{}, nil
	}

	pipe := s.redis.Pipeline()
	existsCmds := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		existsCmds[i] = pipe.Exists(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	live := make([]string, 0, len(ids))
	var stale []any
	for i, cmd := range existsCmds {
		if cmd.Val() == 1 {
			live = append(live, ids[i])
		} else {
			stale = append(stale, ids[i])
		}
	}
	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, userKey, stale...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	sort.Strings(live)
	return live, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) nextSlidingTTL(remaining time.Duration) (time.Duration, error) {
	nextTTL := remaining
	if s.idleTimeout > 0 && s.idleTimeout < remaining {
		nextTTL = s.idleTimeout
	}

	if s.jitterRange > 0 {
		jitter, err := randomJitter(s.jitterRange)
		if err != nil {
			return 0, err
		}
		nextTTL += jitter
	}

	if nextTTL > remaining {
		nextTTL = remaining
	}

	minTTL := minSlidingTTL
	if remaining < minTTL {
		minTTL = remaining
	}
	if nextTTL < minTTL {
		nextTTL = minTTL
	}

	return nextTTL, nil
}

func randomJitter(jitterRange time.Duration) (time.Duration, error) {
	if jitterRange <= 0 {
		return 0, nil
	}

	max := jitterRange.Nanoseconds()
	if max > (math.MaxInt64-1)/2 {
		return 0, errors.New("jitter range too large")
	}
	span := max*2 + 1

	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return 0, err
	}

	return time.Duration(n.Int64() - max), nil
}

func (s *Store) deleteSessionAndIndex(ctx context.Context, userID, sessionID string) error {
	keys := []string{s.key(sessionID), s.userKey(userID), s.countKey()}
	if _, err := deleteSessionLua.Run(ctx, s.redis, keys, sessionID).Result(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
