// Copyright (C) 2026 Trevor Vaughan
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, write to the Free Software Foundation, Inc.,
// 51 Franklin Street, Fifth Floor, Boston, MA 02110-1301 USA.

package machine

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// Lockfile is a PID file providing host-wide mutual exclusion for the
// bootstrap. An empty file, a file holding our own PID, or a file holding a
// dead PID is still acquirable; only a live foreign PID blocks.
type Lockfile struct {
	Path string
}

// TryLock reports whether this process obtained the lock. On success the
// file holds the current PID.
func (l *Lockfile) TryLock() (bool, error) {
	data, err := os.ReadFile(l.Path)
	switch {
	case err == nil:
		pidStr := strings.TrimSpace(string(data))
		if pidStr != "" {
			pid, perr := strconv.Atoi(pidStr)
			if perr == nil && pid != os.Getpid() && processAlive(pid) {
				return false, nil
			}
		}
	case !os.IsNotExist(err):
		return false, err
	}

	if err := os.WriteFile(l.Path, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return false, err
	}
	return true, nil
}

// Unlock removes the lock file. Removing an already-removed lock is not an
// error, so every exit path may call it.
func (l *Lockfile) Unlock() error {
	err := os.Remove(l.Path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// processAlive probes pid with signal 0. EPERM means the process exists but
// belongs to another user, which still counts as alive.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
