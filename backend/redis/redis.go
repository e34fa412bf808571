// Package redis implements the object-store casdict backend on Redis. Each
// key maps to one hash under a bucket prefix, holding the value bytes and
// the object's ETag. ETags are fresh UUIDs installed atomically by
// server-side scripts, so conditional writes ("create if absent", "replace
// if the token matches") are decided by the store itself, not by the client,
// and the token surfaced to callers is the stored token verbatim.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/casdict/backend"
	"github.com/unkn0wn-root/casdict/key"
)

var ErrNilClient = errors.New("redis backend: nil client")

const (
	fieldValue = "v"
	fieldETag  = "etag"
)

var (
	putIfAbsent = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
redis.call('HSET', KEYS[1], 'v', ARGV[1], 'etag', ARGV[2])
return 1`)

	putIfMatch = goredis.NewScript(`
if redis.call('HGET', KEYS[1], 'etag') == ARGV[2] then
  redis.call('HSET', KEYS[1], 'v', ARGV[1], 'etag', ARGV[3])
  return 1
end
return 0`)

	delIfMatch = goredis.NewScript(`
if redis.call('HGET', KEYS[1], 'etag') == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return 1
end
return 0`)
)

// Config tunes a redis Store. Only Client is required; an empty Bucket scans
// the whole logical database on enumeration, so a bucket prefix is strongly
// recommended on shared instances.
type Config struct {
	Client goredis.UniversalClient
	// Bucket is the member prefix; normalized to end with "/" when non-empty.
	Bucket     string
	AppendOnly bool
	ScanCount  int64 // SCAN batch size; 0 => 256
	// CloseClient releases the client on Close. Set it only if this store
	// exclusively owns the client.
	CloseClient bool
}

// Store is a Redis-backed casdict backend.
type Store struct {
	rdb         goredis.UniversalClient
	bucket      string
	appendOnly  bool
	scanCount   int64
	closeClient bool
}

var _ backend.Backend = (*Store)(nil)

func New(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	bucket := cfg.Bucket
	if bucket != "" && !strings.HasSuffix(bucket, "/") {
		bucket += "/"
	}
	scan := cfg.ScanCount
	if scan <= 0 {
		scan = 256
	}
	return &Store{
		rdb:         cfg.Client,
		bucket:      bucket,
		appendOnly:  cfg.AppendOnly,
		scanCount:   scan,
		closeClient: cfg.CloseClient,
	}, nil
}

// Sub returns a view whose bucket is extended by the escaped prefix
// segments. Views share the client and the store's version source.
func (s *Store) Sub(prefix ...any) (*Store, error) {
	p, err := key.NewPrefix(prefix...)
	if err != nil {
		return nil, err
	}
	view := *s
	if p.Len() > 0 {
		view.bucket = s.bucket + key.Join(p, "/") + "/"
	}
	return &view, nil
}

func (s *Store) member(k key.Key) string {
	return s.bucket + key.Join(k, "/")
}

func (s *Store) ETag(ctx context.Context, k key.Key) (string, bool, error) {
	etag, err := s.rdb.HGet(ctx, s.member(k), fieldETag).Result()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis backend: etag %s: %w", k, err)
	}
	return etag, true, nil
}

// Load reads value and etag in one HMGET, so the pair is consistent.
func (s *Store) Load(ctx context.Context, k key.Key) ([]byte, string, bool, error) {
	vals, err := s.rdb.HMGet(ctx, s.member(k), fieldValue, fieldETag).Result()
	if err != nil {
		return nil, "", false, fmt.Errorf("redis backend: load %s: %w", k, err)
	}
	value, okV := vals[0].(string)
	etag, okE := vals[1].(string)
	if !okV || !okE {
		return nil, "", false, nil
	}
	return []byte(value), etag, true, nil
}

func (s *Store) Store(ctx context.Context, k key.Key, value []byte, pre backend.Precondition) (string, bool, error) {
	member := s.member(k)
	newETag := uuid.NewString()

	if s.appendOnly {
		exists, err := s.rdb.Exists(ctx, member).Result()
		if err != nil {
			return "", false, fmt.Errorf("redis backend: exists %s: %w", k, err)
		}
		if exists == 1 {
			return "", false, &backend.PolicyError{Policy: "append-only"}
		}
		if !pre.Holds("", false) {
			return "", false, nil
		}
		// The script re-checks absence atomically; a racing insert loses
		// the precondition rather than overwriting.
		n, err := putIfAbsent.Run(ctx, s.rdb, []string{member}, value, newETag).Int64()
		if err != nil {
			return "", false, fmt.Errorf("redis backend: store %s: %w", k, err)
		}
		return newETag, n == 1, nil
	}

	if match, ok := pre.MatchETag(); ok {
		n, err := putIfMatch.Run(ctx, s.rdb, []string{member}, value, match, newETag).Int64()
		if err != nil {
			return "", false, fmt.Errorf("redis backend: store %s: %w", k, err)
		}
		return newETag, n == 1, nil
	}
	if pre.IsAny() {
		if err := s.rdb.HSet(ctx, member, fieldValue, value, fieldETag, newETag).Err(); err != nil {
			return "", false, fmt.Errorf("redis backend: store %s: %w", k, err)
		}
		return newETag, true, nil
	}
	n, err := putIfAbsent.Run(ctx, s.rdb, []string{member}, value, newETag).Int64()
	if err != nil {
		return "", false, fmt.Errorf("redis backend: store %s: %w", k, err)
	}
	return newETag, n == 1, nil
}

func (s *Store) Delete(ctx context.Context, k key.Key, pre backend.Precondition) (bool, error) {
	if s.appendOnly {
		return false, &backend.PolicyError{Policy: "append-only"}
	}
	member := s.member(k)

	if match, ok := pre.MatchETag(); ok {
		n, err := delIfMatch.Run(ctx, s.rdb, []string{member}, match).Int64()
		if err != nil {
			return false, fmt.Errorf("redis backend: delete %s: %w", k, err)
		}
		return n == 1, nil
	}
	if pre.IsAny() {
		if err := s.rdb.Del(ctx, member).Err(); err != nil {
			return false, fmt.Errorf("redis backend: delete %s: %w", k, err)
		}
		return true, nil
	}
	exists, err := s.rdb.Exists(ctx, member).Result()
	if err != nil {
		return false, fmt.Errorf("redis backend: exists %s: %w", k, err)
	}
	return exists == 0, nil
}

func (s *Store) Keys(ctx context.Context) ([]key.Key, error) {
	var keys []key.Key
	iter := s.rdb.Scan(ctx, 0, s.bucket+"*", s.scanCount).Iterator()
	for iter.Next(ctx) {
		member := iter.Val()
		k, ok := s.keyFromMember(member)
		if !ok {
			continue // foreign member under the bucket
		}
		keys = append(keys, k)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis backend: scan: %w", err)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys, nil
}

func (s *Store) Items(ctx context.Context, fn func(backend.KV) bool) error {
	keys, err := s.Keys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		value, etag, ok, err := s.Load(ctx, k)
		if err != nil {
			return err
		}
		if !ok {
			// deleted between scan and read
			continue
		}
		if !fn(backend.KV{Key: k, ETag: etag, Value: value}) {
			return nil
		}
	}
	return nil
}

func (s *Store) keyFromMember(member string) (key.Key, bool) {
	rest := strings.TrimPrefix(member, s.bucket)
	if rest == "" || rest == member && s.bucket != "" {
		return key.Key{}, false
	}
	k, err := key.Split(rest, "/")
	if err != nil {
		return key.Key{}, false
	}
	return k, true
}

func (s *Store) AppendOnly() bool { return s.appendOnly }

func (s *Store) Params() backend.Params {
	return backend.Params{
		Kind:       "redis",
		Bucket:     s.bucket,
		AppendOnly: s.appendOnly,
	}
}

// Close releases the client only when this store owns it.
func (s *Store) Close(context.Context) error {
	if s.closeClient {
		if err := s.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
