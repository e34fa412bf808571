// Package file implements the filesystem casdict backend. Each key maps to
// one file under a digest-fanout directory tree; the version token is the
// stat triple "mtime_ns:size:inode", so even a replacement that preserves
// size and mtime is detected through the inode change. Writes go through a
// temp file in the target directory followed by an atomic rename, so readers
// never observe a partial file. Reads revalidate with stat-read-stat, and
// every filesystem call is wrapped in a bounded retry with backoff for
// transient lock-style errors.
package file

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/unkn0wn-root/casdict"
	"github.com/unkn0wn-root/casdict/backend"
	"github.com/unkn0wn-root/casdict/internal/backoff"
	"github.com/unkn0wn-root/casdict/key"
)

const tmpPattern = ".casdict-*"

// Config tunes a file Store. Only Root and Ext are required.
type Config struct {
	// Root is the directory the keyspace lives under. It is created lazily
	// on the first write, never at construction.
	Root string
	// Ext is the serialization format tag; files are named "<segment>.<Ext>"
	// and enumeration ignores anything else under Root.
	Ext string

	Fanout     int // hex chars of the digest fanout directory; 0 => 2
	AppendOnly bool

	MaxRetries   int           // transient-error retries per call; 0 => 5
	RetryBase    time.Duration // 0 => 25ms
	RetryMax     time.Duration // 0 => 500ms
	RetryJitter  float64       // 0 => 0.2
	StatAttempts int           // stat-read-stat revalidation rounds; 0 => 3

	Logger casdict.Logger
	Hooks  casdict.Hooks
}

// Store is a filesystem-backed casdict backend.
type Store struct {
	root         string
	ext          string
	fanout       int
	prefix       key.Key
	appendOnly   bool
	maxRetries   int
	statAttempts int
	boff         *backoff.Backoff
	log          casdict.Logger
	hooks        casdict.Hooks

	// readFile is swapped in tests to model a writer racing the read.
	readFile func(string) ([]byte, error)
}

var _ backend.Backend = (*Store)(nil)

// New builds a Store. No filesystem I/O happens here.
func New(cfg Config) (*Store, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("file: root is required")
	}
	if cfg.Ext == "" {
		return nil, fmt.Errorf("file: ext is required")
	}
	if strings.ContainsAny(cfg.Ext, "./\\") {
		return nil, fmt.Errorf("file: ext %q must not contain dots or separators", cfg.Ext)
	}

	s := &Store{
		root:       filepath.Clean(cfg.Root),
		ext:        cfg.Ext,
		fanout:     cfg.Fanout,
		appendOnly: cfg.AppendOnly,
	}
	if s.fanout <= 0 {
		s.fanout = key.DefaultFanout
	}
	s.maxRetries = cfg.MaxRetries
	if s.maxRetries <= 0 {
		s.maxRetries = 5
	}
	s.statAttempts = cfg.StatAttempts
	if s.statAttempts <= 0 {
		s.statAttempts = 3
	}
	jitter := cfg.RetryJitter
	if jitter == 0 {
		jitter = 0.2
	}
	s.boff = backoff.New(cfg.RetryBase, cfg.RetryMax, jitter)

	s.log = cfg.Logger
	if s.log == nil {
		s.log = casdict.NopLogger{}
	}
	s.hooks = cfg.Hooks
	if s.hooks == nil {
		s.hooks = casdict.NopHooks{}
	}
	s.readFile = os.ReadFile
	return s, nil
}

// Sub returns a view scoped under prefix. Views share Root and therefore the
// filesystem's version source.
func (s *Store) Sub(prefix ...any) (*Store, error) {
	p, err := key.NewPrefix(prefix...)
	if err != nil {
		return nil, err
	}
	view := *s
	view.prefix = key.Concat(s.prefix, p)
	return &view, nil
}

func (s *Store) full(k key.Key) key.Key { return key.Concat(s.prefix, k) }

func (s *Store) path(k key.Key) (string, error) {
	p, err := key.Path(s.root, s.full(k), s.fanout)
	if err != nil {
		return "", err
	}
	return p + "." + s.ext, nil
}

// etagOf composes the stat triple. Any of mtime, size, or inode changing
// changes the token.
func etagOf(fi os.FileInfo) string {
	return fmt.Sprintf("%d:%d:%d", fi.ModTime().UnixNano(), fi.Size(), inode(fi))
}

func (s *Store) ETag(ctx context.Context, k key.Key) (string, bool, error) {
	p, err := s.path(k)
	if err != nil {
		return "", false, err
	}
	fi, ok, err := s.stat(ctx, p)
	if err != nil || !ok {
		return "", false, err
	}
	return etagOf(fi), true, nil
}

// Load reads a consistent (value, etag) pair via stat-read-stat: stat before
// the read, read, stat after; when the two stats disagree the read raced a
// writer and is retried. After the attempt budget the just-read content is
// paired with the post-read stat as a documented best effort. A file that
// disappears between the stats reports the key as absent.
func (s *Store) Load(ctx context.Context, k key.Key) ([]byte, string, bool, error) {
	p, err := s.path(k)
	if err != nil {
		return nil, "", false, err
	}

	var (
		data []byte
		post os.FileInfo
	)
	for attempt := 1; attempt <= s.statAttempts; attempt++ {
		pre, ok, err := s.stat(ctx, p)
		if err != nil || !ok {
			return nil, "", false, err
		}
		data, ok, err = s.read(ctx, p)
		if err != nil || !ok {
			return nil, "", false, err
		}
		post, ok, err = s.stat(ctx, p)
		if err != nil || !ok {
			return nil, "", false, err
		}
		if etagOf(pre) == etagOf(post) {
			return data, etagOf(post), true, nil
		}
		s.hooks.ReadRaceDetected(k.String(), attempt)
		s.log.Debug("read raced a writer; revalidating", casdict.Fields{"key": k.String(), "attempt": attempt})
	}
	// Best effort: the content we read, paired with the post-read version.
	return data, etagOf(post), true, nil
}

func (s *Store) Store(ctx context.Context, k key.Key, value []byte, pre backend.Precondition) (string, bool, error) {
	p, err := s.path(k)
	if err != nil {
		return "", false, err
	}

	fi, exists, err := s.stat(ctx, p)
	if err != nil {
		return "", false, err
	}
	if exists && s.appendOnly {
		return "", false, &backend.PolicyError{Policy: "append-only"}
	}
	cur := ""
	if exists {
		cur = etagOf(fi)
	}
	if !pre.Holds(cur, exists) {
		return "", false, nil
	}

	dir := filepath.Dir(p)
	if err := s.mkdirAll(ctx, dir); err != nil {
		return "", false, err
	}

	tmp, err := s.createTemp(ctx, dir)
	if err != nil {
		return "", false, err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", false, fmt.Errorf("file: write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", false, fmt.Errorf("file: close %s: %w", tmpName, err)
	}

	// Rename preserves mtime, size, and inode, so the temp file's stat
	// triple is the target's etag after the swap.
	tfi, ok, err := s.stat(ctx, tmpName)
	if err != nil || !ok {
		os.Remove(tmpName)
		if err == nil {
			err = fmt.Errorf("file: temp file %s vanished before rename", tmpName)
		}
		return "", false, err
	}
	if err := s.rename(ctx, tmpName, p); err != nil {
		os.Remove(tmpName)
		return "", false, err
	}
	return etagOf(tfi), true, nil
}

func (s *Store) Delete(ctx context.Context, k key.Key, pre backend.Precondition) (bool, error) {
	if s.appendOnly {
		return false, &backend.PolicyError{Policy: "append-only"}
	}
	p, err := s.path(k)
	if err != nil {
		return false, err
	}

	fi, exists, err := s.stat(ctx, p)
	if err != nil {
		return false, err
	}
	cur := ""
	if exists {
		cur = etagOf(fi)
	}
	if !pre.Holds(cur, exists) {
		return false, nil
	}
	if !exists {
		return true, nil
	}
	return true, s.remove(ctx, p)
}

func (s *Store) Keys(ctx context.Context) ([]key.Key, error) {
	var keys []key.Key
	err := s.walk(ctx, func(k key.Key, _ string) bool {
		keys = append(keys, k)
		return true
	})
	if err != nil {
		return nil, err
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
			// vanished between listing and reading
			continue
		}
		if !fn(backend.KV{Key: k, ETag: etag, Value: value}) {
			return nil
		}
	}
	return nil
}

// walk visits every file under Root that carries the active extension and
// parses back into a key under the view's prefix. Stray files (editor or OS
// artifacts, foreign extensions, dot files, unparsable names) are skipped;
// directories that vanish mid-walk are tolerated.
func (s *Store) walk(ctx context.Context, fn func(k key.Key, path string) bool) error {
	if _, ok, err := s.stat(ctx, s.root); err != nil || !ok {
		return err
	}
	suffix := "." + s.ext
	return filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("file: walk %s: %w", p, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, suffix) {
			return nil
		}
		k, ok := s.keyFromPath(p)
		if !ok || !k.HasPrefix(s.prefix) {
			return nil
		}
		if !fn(k.TrimPrefix(s.prefix), p) {
			return filepath.SkipAll
		}
		return nil
	})
}

// keyFromPath reverses the Root/fanout/segment mapping.
func (s *Store) keyFromPath(p string) (key.Key, bool) {
	rel, err := filepath.Rel(s.root, p)
	if err != nil {
		return key.Key{}, false
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) < 2 {
		return key.Key{}, false
	}
	fanDir := parts[0]
	parts = parts[1:]
	parts[len(parts)-1] = strings.TrimSuffix(parts[len(parts)-1], "."+s.ext)

	segs := make([]any, len(parts))
	for i, part := range parts {
		seg, err := key.UnescapeSegment(part)
		if err != nil {
			return key.Key{}, false
		}
		segs[i] = seg
	}
	k, err := key.New(segs...)
	if err != nil {
		return key.Key{}, false
	}
	// A file sitting in the wrong fanout directory is a stray, not a key.
	if key.FanoutDir(k.Segments()[0], s.fanout) != fanDir {
		return key.Key{}, false
	}
	return k, true
}

func (s *Store) AppendOnly() bool { return s.appendOnly }

func (s *Store) Params() backend.Params {
	return backend.Params{
		Kind:       "file",
		Root:       s.root,
		Prefix:     s.prefix.String(),
		Ext:        s.ext,
		Fanout:     s.fanout,
		AppendOnly: s.appendOnly,
	}
}

func (s *Store) Close(context.Context) error { return nil }
