//go:build linux

package wlpresent

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// oobSpace holds one control message carrying maxFDsOut descriptors.
var oobSpace = unix.CmsgSpace(maxFDsOut * 4)

// recvmsgWithFDs reads into buf. No event this package handles carries a
// descriptor, so any that arrive are closed at once. The caller holds
// recvMu.
func (d *Display) recvmsgWithFDs(buf []byte) (int, error) {
	n, oobn, _, _, err := d.conn.ReadMsgUnix(buf, d.oob)
	if err != nil {
		return n, err
	}
	if oobn == 0 {
		return n, nil
	}

	scms, err := unix.ParseSocketControlMessage(d.oob[:oobn])
	if err != nil {
		return n, fmt.Errorf("parse control message: %w", err)
	}
	for i := range scms {
		if scms[i].Header.Level != unix.SOL_SOCKET || scms[i].Header.Type != unix.SCM_RIGHTS {
			continue
		}
		fds, err := unix.ParseUnixRights(&scms[i])
		if err != nil {
			return n, fmt.Errorf("parse unix rights: %w", err)
		}
		d.log.Debug("closing unexpected descriptors", "count", len(fds))
		closeFDs(fds)
	}
	return n, nil
}

// flushLocked writes the output buffer with every queued descriptor
// attached to the first byte. The caller holds sendMu.
func (d *Display) flushLocked() error {
	if len(d.out) == 0 {
		return nil
	}

	var oob []byte
	if len(d.outFDs) > 0 {
		oob = unix.UnixRights(d.outFDs...)
	}
	n, _, err := d.conn.WriteMsgUnix(d.out, oob, nil)
	if err == nil && n < len(d.out) {
		_, err = d.conn.Write(d.out[n:])
	}

	closeFDs(d.outFDs)
	d.outFDs = d.outFDs[:0]
	d.out = d.out[:0]
	if err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// pollReadable reports whether fd has input within timeout milliseconds.
func pollReadable(fd int, timeout int) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, timeout)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("poll: %w", err)
		}
		return n > 0 && fds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0, nil
	}
}

func dupFD(fd int) (int, error) {
	return unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
}

func closeFDs(fds []int) {
	for _, fd := range fds {
		_ = unix.Close(fd)
	}
}

// CreateAnonymousFile creates a sealed, unlinked file of the given size
// for shared memory.
func CreateAnonymousFile(size int64) (fd int, err error) {
	// memfd_create first (Linux 3.17+)
	fd, err = unix.MemfdCreate("wlpresent-shm", unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err == nil {
		if err = unix.Ftruncate(fd, size); err != nil {
			_ = unix.Close(fd)
			return -1, err
		}

		// The compositor maps the file too; it must not shrink under it.
		_, err = unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS,
			unix.F_SEAL_SHRINK|unix.F_SEAL_GROW|unix.F_SEAL_SEAL)
		if err != nil {
			_ = unix.Close(fd)
			return -1, err
		}
		return fd, nil
	}

	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = "/dev/shm"
	}

	// O_TMPFILE if the filesystem supports it
	fd, err = unix.Open(dir, unix.O_TMPFILE|unix.O_RDWR|unix.O_CLOEXEC, 0600)
	if err == nil {
		if err = unix.Ftruncate(fd, size); err != nil {
			_ = unix.Close(fd)
			return -1, err
		}
		return fd, nil
	}

	// Final fallback: create a named file and unlink it immediately
	name := fmt.Sprintf("%s/wlpresent-%d-%d", dir, unix.Getpid(), size)
	fd, err = unix.Open(name, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC, 0600)
	if err != nil {
		return -1, err
	}
	_ = unix.Unlink(name)

	if err = unix.Ftruncate(fd, size); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// MapMemory maps a file descriptor into memory
func MapMemory(fd int, size int) ([]byte, error) {
	return unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

// UnmapMemory unmaps memory
func UnmapMemory(data []byte) error {
	return unix.Munmap(data)
}
