//go:build unix

// filelock_unix.go - advisory exclusive locking for disk-image backing
// files (EEPROM, CompactFlash, TF card), so two emulator instances
// pointed at the same image file fail fast instead of silently
// corrupting it.
package main

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// lockBackingFile takes a non-blocking exclusive advisory lock on f's
// file descriptor. The lock is released automatically when f is closed.
func lockBackingFile(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return fmt.Errorf("flock %s: %w (already open by another instance?)", f.Name(), err)
	}
	return nil
}
