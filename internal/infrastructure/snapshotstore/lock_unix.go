//go:build unix

package snapshotstore

import (
	"os"
	"path/filepath"
	"syscall"
)

// fileLock guards the snapshot directory against concurrent writers.
type fileLock struct {
	file *os.File
}

// acquireLock takes an exclusive flock on <Dir>/.lock, blocking until held.
func (s *FileStore) acquireLock() (*fileLock, error) {
	if err := os.MkdirAll(s.Dir, 0o750); err != nil {
		return nil, err
	}

	// #nosec G304 -- Dir comes from trusted config
	file, err := os.OpenFile(filepath.Join(s.Dir, ".lock"), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX); err != nil {
		_ = file.Close()
		return nil, err
	}

	return &fileLock{file: file}, nil
}

func (l *fileLock) release() error {
	if l.file == nil {
		return nil
	}
	unlockErr := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	if unlockErr != nil {
		return unlockErr
	}
	return closeErr
}
