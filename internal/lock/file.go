package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// PIDLock is an InstanceLock backed by a file holding the owner's PID. A
// file left behind by a dead process is taken over.
type PIDLock struct {
	Path string
	pid  int
}

// NewPIDLock creates a PIDLock at path.
func NewPIDLock(path string) *PIDLock {
	return &PIDLock{Path: path, pid: os.Getpid()}
}

func (l *PIDLock) Acquire(_ context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.Path), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, werr := f.WriteString(strconv.Itoa(l.pid))
			cerr := f.Close()
			if werr != nil {
				return werr
			}
			return cerr
		}
		if !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("create pid file: %w", err)
		}
		owner, alive := l.owner()
		if alive {
			return fmt.Errorf("%w: pid %d", ErrHeld, owner)
		}
		log.Warn().Int("pid", owner).Str("path", l.Path).Msg("removing stale instance lock")
		if err := os.Remove(l.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale pid file: %w", err)
		}
	}
	return ErrHeld
}

func (l *PIDLock) Release(_ context.Context) error {
	owner, _ := l.owner()
	if owner != l.pid {
		return nil
	}
	if err := os.Remove(l.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (l *PIDLock) owner() (int, bool) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, processAlive(pid)
}

func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, os.ErrPermission)
}

// FileMutex is a cross-process mutex made from an exclusively created file.
// A lock file older than Stale is assumed abandoned and broken.
type FileMutex struct {
	Path    string
	Timeout time.Duration
	Stale   time.Duration
	Poll    time.Duration
}

// NewFileMutex creates a FileMutex with the given wait timeout and stale age.
func NewFileMutex(path string, timeout, stale time.Duration) *FileMutex {
	return &FileMutex{Path: path, Timeout: timeout, Stale: stale, Poll: 25 * time.Millisecond}
}

// Lock blocks until the mutex is taken, the timeout passes or ctx ends. The
// returned func releases it.
func (m *FileMutex) Lock(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(m.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	token := strconv.Itoa(os.Getpid()) + ":" + uuid.NewString()
	deadline := time.Now().Add(m.Timeout)
	for {
		f, err := os.OpenFile(m.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, werr := f.WriteString(token)
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(m.Path)
				return nil, fmt.Errorf("write lock file: %w", errors.Join(werr, cerr))
			}
			return func() { m.release(token) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}
		if info, serr := os.Stat(m.Path); serr == nil && m.Stale > 0 && time.Since(info.ModTime()) > m.Stale {
			log.Warn().Str("path", m.Path).Dur("age", time.Since(info.ModTime())).Msg("breaking stale store lock")
			_ = os.Remove(m.Path)
			continue
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrHeld, m.Path)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.Poll):
		}
	}
}

// release removes the lock file only while it still holds token; a holder
// whose lock was broken as stale leaves the new owner's file alone.
func (m *FileMutex) release(token string) {
	data, err := os.ReadFile(m.Path)
	if err != nil {
		return
	}
	if string(data) != token {
		log.Warn().Str("path", m.Path).Msg("store lock taken over, not removing")
		return
	}
	_ = os.Remove(m.Path)
}
