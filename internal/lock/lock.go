// Package lock keeps two zerepyctl invocations from working on the same
// root at once.
//
// A lock is a small JSON file naming the owning process. A lock whose owner
// is no longer running is stale and is replaced silently.
package lock

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/zerepy/zerepyctl/internal/logging"
)

// ErrLocked is returned when another live process holds the lock.
var ErrLocked = errors.New("root is locked by another zerepyctl process")

// Lock represents an acquired root lock
type Lock struct {
	Root      string    `json:"root"`
	Operation string    `json:"operation"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`

	// Internal fields (not serialized)
	path   string
	logger *logging.Logger
}

// Path returns the lock file used for root inside dir. Roots are keyed by
// a hash of their absolute path so any directory can be locked without
// writing into it.
func Path(dir, root string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(root)))
	return filepath.Join(dir, hex.EncodeToString(sum[:8])+".lock")
}

// Acquire takes the lock for root, recording op as the holder's operation.
// It returns an error wrapping ErrLocked when a live process holds it.
// The logger is optional.
func Acquire(dir, root, op string, logger *logging.Logger) (*Lock, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	path := Path(dir, root)

	// Check for existing lock
	existing, err := Read(path)
	switch {
	case err == nil:
		if isProcessAlive(existing.PID) && existing.PID != os.Getpid() {
			logger.Error("failed to acquire lock", "root", root, "holder_pid", existing.PID, "holder_op", existing.Operation)
			return nil, existing.lockedError()
		}
		// Stale lock - remove it
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", err)
		}
		logger.Warn("stale lock cleaned", "root", root, "old_pid", existing.PID)
	case !errors.Is(err, fs.ErrNotExist):
		// Unreadable lock files are treated as stale
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to remove corrupt lock: %w", err)
		}
		logger.Warn("corrupt lock cleaned", "root", root)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	l := &Lock{
		Root:      root,
		Operation: op,
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
		path:      path,
		logger:    logger,
	}

	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	// Use O_EXCL to fail if file already exists (race condition protection)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			if existing, readErr := Read(path); readErr == nil {
				return nil, existing.lockedError()
			}
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}

	logger.Debug("lock acquired", "root", root, "path", path)
	return l, nil
}

func (l *Lock) lockedError() error {
	return fmt.Errorf("%w: %s (pid %d on %s) is running in %s", ErrLocked, l.Operation, l.PID, l.Hostname, l.Root)
}

// Release removes the lock file if this process still owns it.
// Safe to call multiple times.
func (l *Lock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}

	existing, err := Read(l.path)
	if err != nil || existing.PID != l.PID {
		return nil
	}
	if err := os.Remove(l.path); err != nil {
		return err
	}
	if l.logger != nil {
		l.logger.Debug("lock released", "root", l.Root)
	}
	return nil
}

// Read reads a lock file.
func Read(path string) (*Lock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var l Lock
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to parse lock file: %w", err)
	}
	l.path = path
	return &l, nil
}

// isProcessAlive checks if a process with the given PID is still running.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	// On Unix, sending signal 0 checks if process exists without affecting it
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
