package engine

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Lock is a per-environment mutual exclusion file. It is advisory:
// O_CREATE|O_EXCL makes the create atomic, and the holder's pid is
// written for diagnostics.
type Lock struct {
	path string
}

// AcquireLock takes the environment lock, failing fast when another
// operation holds it.
func AcquireLock(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			holder := "unknown"
			if data, readErr := os.ReadFile(path); readErr == nil {
				if pid := strings.TrimSpace(string(data)); pid != "" {
					holder = "pid " + pid
				}
			}
			return nil, NewStateError(
				fmt.Sprintf("environment is locked by another operation (%s)", holder), err).
				WithSuggestion("wait for the other operation to finish, or remove the stale lock file " + path)
		}
		return nil, NewStateError("failed to create lock file", err)
	}

	_, writeErr := f.WriteString(strconv.Itoa(os.Getpid()))
	closeErr := f.Close()
	if writeErr != nil || closeErr != nil {
		_ = os.Remove(path)
		if writeErr == nil {
			writeErr = closeErr
		}
		return nil, NewStateError("failed to write lock file", writeErr)
	}

	return &Lock{path: path}, nil
}

// Release removes the lock file. Safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	err := os.Remove(l.path)
	l.path = ""
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
