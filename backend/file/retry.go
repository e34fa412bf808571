package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/unkn0wn-root/casdict"
)

// transient reports whether err looks like a short-lived OS condition
// (another process holding the file, descriptor pressure) worth retrying.
func transient(err error) bool {
	for _, e := range []error{
		syscall.EAGAIN,
		syscall.EBUSY,
		syscall.EINTR,
		syscall.ETXTBSY,
		syscall.EMFILE,
		syscall.ENFILE,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// withRetry runs fn, retrying transient errors up to the configured budget
// with backoff. After exhaustion the original error propagates unchanged.
func (s *Store) withRetry(ctx context.Context, op, target string, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !transient(err) {
			return err
		}
		if attempt >= s.maxRetries {
			s.hooks.RetriesExhausted(op, target, attempt+1, err)
			s.log.Warn("transient error retries exhausted", casdict.Fields{
				"op": op, "target": target, "attempts": attempt + 1, "err": err,
			})
			return err
		}
		s.hooks.RetryScheduled(op, target, attempt+1, err)
		if serr := s.boff.Sleep(ctx, attempt); serr != nil {
			return serr
		}
	}
}

// stat wraps os.Stat; ok=false when the path does not exist.
func (s *Store) stat(ctx context.Context, p string) (os.FileInfo, bool, error) {
	var fi os.FileInfo
	err := s.withRetry(ctx, "stat", p, func() error {
		var serr error
		fi, serr = os.Stat(p)
		return serr
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("file: stat %s: %w", p, err)
	}
	return fi, true, nil
}

// read wraps os.ReadFile; ok=false when the path does not exist.
func (s *Store) read(ctx context.Context, p string) ([]byte, bool, error) {
	var data []byte
	err := s.withRetry(ctx, "read", p, func() error {
		var rerr error
		data, rerr = s.readFile(p)
		return rerr
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("file: read %s: %w", p, err)
	}
	return data, true, nil
}

func (s *Store) rename(ctx context.Context, from, to string) error {
	err := s.withRetry(ctx, "rename", to, func() error {
		return os.Rename(from, to)
	})
	if err != nil {
		return fmt.Errorf("file: rename %s: %w", to, err)
	}
	return nil
}

// remove wraps os.Remove; a path already gone counts as removed.
func (s *Store) remove(ctx context.Context, p string) error {
	err := s.withRetry(ctx, "delete", p, func() error {
		return os.Remove(p)
	})
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("file: delete %s: %w", p, err)
	}
	return nil
}

func (s *Store) mkdirAll(ctx context.Context, dir string) error {
	err := s.withRetry(ctx, "mkdir", dir, func() error {
		return os.MkdirAll(dir, 0o755)
	})
	if err != nil {
		return fmt.Errorf("file: mkdir %s: %w", dir, err)
	}
	return nil
}

func (s *Store) createTemp(ctx context.Context, dir string) (*os.File, error) {
	var f *os.File
	err := s.withRetry(ctx, "write", dir, func() error {
		var cerr error
		f, cerr = os.CreateTemp(dir, tmpPattern)
		return cerr
	})
	if err != nil {
		return nil, fmt.Errorf("file: create temp in %s: %w", dir, err)
	}
	return f, nil
}
