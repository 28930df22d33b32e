//go:build windows

package snapshotstore

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// fileLock guards the snapshot directory against concurrent writers.
type fileLock struct {
	file *os.File
}

// acquireLock takes an exclusive LockFileEx lock on <Dir>/.lock.
func (s *FileStore) acquireLock() (*fileLock, error) {
	if err := os.MkdirAll(s.Dir, 0o750); err != nil {
		return nil, err
	}

	// #nosec G304 -- Dir comes from trusted config
	file, err := os.OpenFile(filepath.Join(s.Dir, ".lock"), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	handle := windows.Handle(file.Fd())
	overlapped := &windows.Overlapped{}
	if err := windows.LockFileEx(handle, windows.LOCKFILE_EXCLUSIVE_LOCK, 0, 1, 0, overlapped); err != nil {
		_ = file.Close()
		return nil, err
	}

	return &fileLock{file: file}, nil
}

func (l *fileLock) release() error {
	if l.file == nil {
		return nil
	}
	handle := windows.Handle(l.file.Fd())
	overlapped := &windows.Overlapped{}
	unlockErr := windows.UnlockFileEx(handle, 0, 1, 0, overlapped)
	closeErr := l.file.Close()
	if unlockErr != nil {
		return unlockErr
	}
	return closeErr
}
