//go:build linux

package wlpresent

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bnema/wlpresent/present"
)

// Source is an extra descriptor watched by RunPolled. Ready is called
// when FD is readable; an error closes the window.
type Source struct {
	FD    int
	Ready func() error
}

func (d *Display) interrupt() { _ = d.conn.SetReadDeadline(time.Now()) }
func (d *Display) resume()    { _ = d.conn.SetReadDeadline(time.Time{}) }

// RunPolled is Run driven by poll(2): outbound requests are flushed
// before every poll, every readable event is dispatched before the
// state machine runs, and sources share the loop with the display.
func (w *Window) RunPolled(ctx context.Context, sources ...Source) error {
	wake, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return fmt.Errorf("eventfd: %w", err)
	}
	defer unix.Close(wake)

	stop := context.AfterFunc(ctx, func() {
		var one [8]byte
		binary.NativeEndian.PutUint64(one[:], 1)
		_, _ = unix.Write(wake, one[:])
	})
	defer stop()

	fds := make([]unix.PollFd, 0, 2+len(sources))
	fds = append(fds,
		unix.PollFd{Fd: int32(w.display.FD()), Events: unix.POLLIN},
		unix.PollFd{Fd: int32(wake), Events: unix.POLLIN},
	)
	for _, s := range sources {
		fds = append(fds, unix.PollFd{Fd: int32(s.FD), Events: unix.POLLIN})
	}

	for !w.core.Closed() {
		if err := w.display.Flush(); err != nil {
			w.push(present.DisconnectEvent{Err: err})
			if err := w.drain(); err != nil {
				return err
			}
			continue
		}

		if _, err := unix.Poll(fds, -1); err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("poll: %w", err)
		}

		if fds[1].Revents != 0 {
			return w.cancel(ctx)
		}

		if fds[0].Revents != 0 {
			if err := w.display.DispatchPending(); err != nil {
				w.push(present.DisconnectEvent{Err: err})
			}
			if err := w.step(); err != nil {
				return err
			}
		}

		for i, s := range sources {
			if fds[2+i].Revents == 0 || w.core.Closed() {
				continue
			}
			if err := s.Ready(); err != nil {
				w.log.Error("source failed", "fd", s.FD, "err", err)
				if cerr := w.Close(); cerr != nil {
					w.log.Warn("close after source failure", "err", cerr)
				}
				return err
			}
		}
	}
	return w.finish()
}

// Ticker is a timerfd Source.
type Ticker struct {
	fd   int
	tick func(expirations uint64) error
}

// NewTicker arms a periodic timer. tick receives the number of periods
// elapsed since the last call.
func NewTicker(interval time.Duration, tick func(expirations uint64) error) (*Ticker, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("invalid ticker interval %v", interval)
	}
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("timerfd: %w", err)
	}

	ts := unix.NsecToTimespec(interval.Nanoseconds())
	spec := unix.ItimerSpec{Interval: ts, Value: ts}
	if err := unix.TimerfdSettime(fd, 0, &spec, nil); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("timerfd settime: %w", err)
	}
	return &Ticker{fd: fd, tick: tick}, nil
}

// Source returns the ticker as a RunPolled source.
func (t *Ticker) Source() Source {
	return Source{FD: t.fd, Ready: t.ready}
}

func (t *Ticker) ready() error {
	var buf [8]byte
	if _, err := unix.Read(t.fd, buf[:]); err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return nil
		}
		return fmt.Errorf("timerfd read: %w", err)
	}
	return t.tick(binary.NativeEndian.Uint64(buf[:]))
}

// Close stops the timer.
func (t *Ticker) Close() error {
	return unix.Close(t.fd)
}
