package daemon

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Pidfile holds an exclusively locked process id file, created and
// locked before fork and written after, mirroring the reference
// daemon's create_pidfile/write_pidfile split so that a stale pidfile
// left by a crashed process never blocks a fresh start.
type Pidfile struct {
	path string
	fd   int
}

// CreatePidfile opens (or reopens) path, taking an exclusive
// non-blocking flock. If the file already exists and names a process
// that is still alive, it returns an error rather than clobbering it.
func CreatePidfile(path string) (*Pidfile, error) {
	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC, 0644)
	if err != nil {
		if err != unix.EEXIST {
			return nil, fmt.Errorf("create pid file %s: %w", path, err)
		}

		fd, err = unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_CLOEXEC, 0644)
		if err != nil {
			return nil, fmt.Errorf("open pid file %s: %w", path, err)
		}

		if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("pid file %s is in use by another process", path)
		}

		if pid, ok := readLivePid(fd); ok {
			unix.Close(fd)
			return nil, fmt.Errorf("pid file %s is in use by process %d", path, pid)
		}

		if _, err := unix.Seek(fd, 0, 0); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("seek pid file %s: %w", path, err)
		}
		if err := unix.Ftruncate(fd, 0); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("truncate pid file %s: %w", path, err)
		}
		return &Pidfile{path: path, fd: fd}, nil
	}

	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("lock pid file %s: %w", path, err)
	}
	return &Pidfile{path: path, fd: fd}, nil
}

func readLivePid(fd int) (int, bool) {
	buf := make([]byte, 64)
	n, err := unix.Read(fd, buf)
	if err != nil || n == 0 {
		return 0, false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(buf[:n])))
	if err != nil || pid <= 0 {
		return 0, false
	}

	if err := unix.Kill(pid, 0); err != nil {
		return 0, false
	}
	return pid, true
}

// Write records the current process id, to be called once after any
// daemonizing fork so the file reflects the backgrounded pid rather
// than the parent that created it.
func (p *Pidfile) Write() error {
	if _, err := unix.Seek(p.fd, 0, 0); err != nil {
		return fmt.Errorf("seek pid file %s: %w", p.path, err)
	}
	if err := unix.Ftruncate(p.fd, 0); err != nil {
		return fmt.Errorf("truncate pid file %s: %w", p.path, err)
	}
	if _, err := unix.Write(p.fd, fmt.Appendf(nil, "%d\n", os.Getpid())); err != nil {
		return fmt.Errorf("write pid file %s: %w", p.path, err)
	}
	return nil
}

// Remove unlinks the pid file, called from the termination handler.
func (p *Pidfile) Remove() {
	unix.Close(p.fd)
	_ = os.Remove(p.path)
}
