// Package wlpresent connects to a Wayland compositor and presents shared
// memory buffers in an xdg_toplevel window.
//
// The wire transport, object table and protocol proxies live here; the
// buffer pool and presentation state machine live in package present and
// are driven through the adapters in channel.go.
package wlpresent

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/eapache/queue"
)

const (
	displayID = 1

	// maxMessageSize is the largest message libwayland accepts.
	maxMessageSize = 4096

	// maxFDsOut is the number of descriptors sent with one sendmsg.
	maxFDsOut = 28
)

// Sentinel errors returned by the transport.
var (
	ErrClosed        = errors.New("display closed")
	ErrMissingGlobal = errors.New("global not advertised")
)

// ProtocolError is a fatal wl_display.error sent by the compositor.
type ProtocolError struct {
	ObjectID  uint32
	Interface string
	Code      uint32
	Message   string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error on %s@%d, code %d: %s", e.Interface, e.ObjectID, e.Code, e.Message)
}

// Object is a Wayland object known by id.
type Object interface {
	ID() uint32
}

// Display is a connection to the compositor. Requests are buffered until
// Flush; Dispatch flushes before it blocks.
type Display struct {
	conn *net.UnixConn
	fd   int
	log  *slog.Logger

	objects objectTable

	idMu    sync.Mutex
	nextID  uint32
	freeIDs *queue.Queue // ids returned by delete_id, reused before nextID

	sendMu sync.Mutex
	out    []byte
	outFDs []int
	closed bool

	recvMu sync.Mutex
	oob    []byte
	err    error

	registry *Registry
	context  *Context

	headerBuf    [8]byte
	eventBodyBuf [maxMessageSize]byte
}

// Connect connects to the compositor socket. An empty socket name uses
// WAYLAND_DISPLAY, falling back to wayland-0; relative names are
// resolved against XDG_RUNTIME_DIR.
func Connect(socket string) (*Display, error) {
	path, err := socketPath(socket)
	if err != nil {
		return nil, err
	}

	conn, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Wayland: %w", err)
	}

	d, err := newDisplay(conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	d.log.Info("connected", "socket", path)
	return d, nil
}

func socketPath(socket string) (string, error) {
	if socket == "" {
		socket = os.Getenv("WAYLAND_DISPLAY")
		if socket == "" {
			socket = "wayland-0"
		}
	}
	if filepath.IsAbs(socket) {
		return socket, nil
	}
	runDir := os.Getenv("XDG_RUNTIME_DIR")
	if runDir == "" {
		return "", errors.New("XDG_RUNTIME_DIR not set")
	}
	return filepath.Join(runDir, socket), nil
}

func newDisplay(conn *net.UnixConn) (*Display, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("failed to get socket fd: %w", err)
	}
	fd := -1
	if err := raw.Control(func(s uintptr) { fd = int(s) }); err != nil {
		return nil, fmt.Errorf("failed to get socket fd: %w", err)
	}

	d := &Display{
		conn:    conn,
		fd:      fd,
		log:     Logger().With("component", "display"),
		nextID:  displayID + 1,
		freeIDs: queue.New(),
		oob:     make([]byte, oobSpace),
	}
	d.context = &Context{display: d}

	d.registry = &Registry{globals: make(map[uint32]Global)}
	d.registry.SetContext(d.context)
	d.registry.SetID(d.allocateID())
	d.context.Register(d.registry)

	// get_registry
	if err := d.SendRequest(displayID, 1, d.registry.ID()); err != nil {
		return nil, fmt.Errorf("failed to get registry: %w", err)
	}
	return d, nil
}

// Close closes the connection. Pending requests are discarded.
func (d *Display) Close() error {
	d.sendMu.Lock()
	d.closed = true
	closeFDs(d.outFDs)
	d.outFDs = nil
	d.out = nil
	d.sendMu.Unlock()

	return d.conn.Close()
}

// ID returns the display's object id, always 1.
func (d *Display) ID() uint32 { return displayID }

// Context returns the context proxies of this display share.
func (d *Display) Context() *Context { return d.context }

// FD returns the socket descriptor for use with poll.
func (d *Display) FD() int { return d.fd }

// Registry returns the global registry.
func (d *Display) Registry() *Registry { return d.registry }

func (d *Display) allocateID() uint32 {
	d.idMu.Lock()
	defer d.idMu.Unlock()
	if d.freeIDs.Length() > 0 {
		return d.freeIDs.Remove().(uint32)
	}
	id := d.nextID
	d.nextID++
	return id
}

func (d *Display) releaseID(id uint32) {
	d.idMu.Lock()
	d.freeIDs.Add(id)
	d.idMu.Unlock()
}

// SendRequest queues a request. uintptr arguments are file descriptors;
// they are duplicated and sent out of band with the next flush.
func (d *Display) SendRequest(objectID uint32, opcode uint16, args ...any) error {
	d.sendMu.Lock()
	defer d.sendMu.Unlock()

	if d.closed {
		return ErrClosed
	}

	start := len(d.out)
	msg := append(d.out, 0, 0, 0, 0, 0, 0, 0, 0)
	var fds []int
	for _, arg := range args {
		if fd, ok := arg.(uintptr); ok {
			dup, err := dupFD(int(fd))
			if err != nil {
				closeFDs(fds)
				d.out = msg[:start]
				return fmt.Errorf("failed to duplicate fd %d: %w", fd, err)
			}
			fds = append(fds, dup)
			continue
		}
		var err error
		if msg, err = marshalArg(msg, arg); err != nil {
			closeFDs(fds)
			d.out = msg[:start]
			return fmt.Errorf("failed to marshal argument: %w", err)
		}
	}

	size := len(msg) - start
	if size > maxMessageSize {
		closeFDs(fds)
		d.out = msg[:start]
		return fmt.Errorf("message too large: %d bytes", size)
	}
	binary.LittleEndian.PutUint32(msg[start:], objectID)
	// Upper 16 bits = size, lower 16 bits = opcode
	binary.LittleEndian.PutUint32(msg[start+4:], uint32(size)<<16|uint32(opcode))

	d.out = msg
	d.outFDs = append(d.outFDs, fds...)
	if len(d.out) >= maxMessageSize || len(d.outFDs) >= maxFDsOut {
		return d.flushLocked()
	}
	return nil
}

// marshalArg appends a single argument in wire format.
func marshalArg(b []byte, arg any) ([]byte, error) {
	switch v := arg.(type) {
	case uint32:
		return binary.LittleEndian.AppendUint32(b, v), nil
	case int32:
		return binary.LittleEndian.AppendUint32(b, uint32(v)), nil
	case string:
		// length including the terminator, bytes, terminator, padding
		b = binary.LittleEndian.AppendUint32(b, uint32(len(v)+1))
		b = append(b, v...)
		b = append(b, 0)
		return pad(b, len(v)+1), nil
	case []byte:
		b = binary.LittleEndian.AppendUint32(b, uint32(len(v)))
		b = append(b, v...)
		return pad(b, len(v)), nil
	case Object:
		return binary.LittleEndian.AppendUint32(b, v.ID()), nil
	case nil:
		return binary.LittleEndian.AppendUint32(b, 0), nil
	}
	return b, fmt.Errorf("unsupported argument type: %T", arg)
}

func pad(b []byte, n int) []byte {
	for i := 0; i < (4-n%4)%4; i++ {
		b = append(b, 0)
	}
	return b
}

// Flush writes every queued request.
func (d *Display) Flush() error {
	d.sendMu.Lock()
	defer d.sendMu.Unlock()
	if d.closed {
		return ErrClosed
	}
	return d.flushLocked()
}

// Dispatch flushes, then blocks until one event has been read and
// delivered to its object.
func (d *Display) Dispatch() error {
	if err := d.Flush(); err != nil {
		return err
	}
	return d.dispatchOne()
}

// DispatchPending delivers every event that can be read without
// blocking.
func (d *Display) DispatchPending() error {
	for {
		ok, err := pollReadable(d.fd, 0)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := d.dispatchOne(); err != nil {
			return err
		}
	}
}

func (d *Display) dispatchOne() error {
	d.recvMu.Lock()
	defer d.recvMu.Unlock()

	if d.err != nil {
		return d.err
	}

	if n, err := d.readFull(d.headerBuf[:]); err != nil {
		if n == 0 && errors.Is(err, os.ErrDeadlineExceeded) {
			// interrupted between messages; the stream is intact
			return err
		}
		return d.fail(fmt.Errorf("failed to read header: %w", err))
	}

	objectID := binary.LittleEndian.Uint32(d.headerBuf[0:4])
	sizeOpcode := binary.LittleEndian.Uint32(d.headerBuf[4:8])
	size := int(sizeOpcode >> 16)
	opcode := uint16(sizeOpcode & 0xffff)
	if size < 8 {
		return d.fail(fmt.Errorf("invalid message size %d", size))
	}

	var body []byte
	if size > 8 {
		if size-8 <= len(d.eventBodyBuf) {
			body = d.eventBodyBuf[:size-8]
		} else {
			body = make([]byte, size-8)
		}
		if _, err := d.readFull(body); err != nil {
			return d.fail(fmt.Errorf("failed to read body: %w", err))
		}
	}

	if objectID == displayID {
		if err := d.handleDisplayEvent(opcode, body); err != nil {
			return d.fail(err)
		}
		return nil
	}

	proxy, ok := d.objects.Load(objectID)
	if !ok {
		// Events for objects destroyed on our side are expected until the
		// compositor processes the destroy.
		d.log.Debug("event for unknown object", "id", objectID, "opcode", opcode)
		return nil
	}

	event := eventPool.Get().(*Event)
	event.ProxyID = objectID
	event.Opcode = opcode
	event.data = body
	event.offset = 0
	proxy.Dispatch(event)
	event.data = nil
	eventPool.Put(event)
	return nil
}

func (d *Display) readFull(buf []byte) (int, error) {
	off := 0
	for off < len(buf) {
		n, err := d.recvmsgWithFDs(buf[off:])
		off += n
		if err != nil {
			return off, err
		}
		if n == 0 {
			return off, io.EOF
		}
	}
	return off, nil
}

func (d *Display) fail(err error) error {
	d.err = err
	return err
}

// handleDisplayEvent handles events on the display object.
func (d *Display) handleDisplayEvent(opcode uint16, data []byte) error {
	e := Event{ProxyID: displayID, Opcode: opcode, data: data}
	switch opcode {
	case 0: // error
		perr := &ProtocolError{ObjectID: e.Uint32(), Code: e.Uint32(), Message: e.String()}
		switch obj, ok := d.objects.Load(perr.ObjectID); {
		case perr.ObjectID == displayID:
			perr.Interface = "wl_display"
		case ok:
			perr.Interface = interfaceName(obj)
		default:
			perr.Interface = "unknown"
		}
		d.log.Error("compositor reported a protocol error", "err", perr)
		return perr

	case 1: // delete_id
		if len(data) < 4 {
			return errors.New("invalid delete_id event")
		}
		id := e.Uint32()
		d.objects.Delete(id)
		d.releaseID(id)
	}
	return nil
}

// Sync requests a callback fired once the compositor has processed every
// request sent before it.
func (d *Display) Sync(done func(data uint32)) (*Callback, error) {
	cb := newCallback(d.context, done)
	if err := d.SendRequest(displayID, 0, cb.ID()); err != nil {
		d.context.Unregister(cb)
		return nil, err
	}
	return cb, nil
}

// Roundtrip blocks until the compositor has processed every request sent
// so far and the events it generated have been dispatched.
func (d *Display) Roundtrip() error {
	done := false
	if _, err := d.Sync(func(uint32) { done = true }); err != nil {
		return err
	}
	for !done {
		if err := d.Dispatch(); err != nil {
			return err
		}
	}
	return nil
}

// Global is an object advertised by the compositor.
type Global struct {
	Name      uint32
	Interface string
	Version   uint32
}

// Registry tracks the globals advertised by the compositor.
type Registry struct {
	BaseProxy
	mu      sync.RWMutex
	globals map[uint32]Global

	// OnGlobal and OnGlobalRemove, when set, observe announcements.
	OnGlobal       func(Global)
	OnGlobalRemove func(Global)
}

// Dispatch handles global (0) and global_remove (1).
func (r *Registry) Dispatch(event *Event) {
	switch event.Opcode {
	case 0:
		g := Global{Name: event.Uint32(), Interface: event.String(), Version: event.Uint32()}
		r.mu.Lock()
		r.globals[g.Name] = g
		r.mu.Unlock()
		r.display().log.Debug("global announced", "interface", g.Interface, "version", g.Version, "name", g.Name)
		if r.OnGlobal != nil {
			r.OnGlobal(g)
		}

	case 1:
		name := event.Uint32()
		r.mu.Lock()
		g, ok := r.globals[name]
		delete(r.globals, name)
		r.mu.Unlock()
		if ok && r.OnGlobalRemove != nil {
			r.OnGlobalRemove(g)
		}
	}
}

// Bind binds a global by name to proxy, allocating its id.
func (r *Registry) Bind(name uint32, iface string, version uint32, proxy Proxy) error {
	proxy.SetContext(r.context)
	proxy.SetID(r.context.AllocateID())
	r.context.Register(proxy)

	if err := r.context.SendRequest(r, 0, name, iface, version, proxy.ID()); err != nil {
		r.context.Unregister(proxy)
		return err
	}
	return nil
}

// BindInterface binds the first global implementing iface at the lower of
// version and the advertised version, which it returns.
func (r *Registry) BindInterface(iface string, version uint32, proxy Proxy) (uint32, error) {
	g, ok := r.FindGlobal(iface)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingGlobal, iface)
	}
	version = min(version, g.Version)
	if err := r.Bind(g.Name, iface, version, proxy); err != nil {
		return 0, fmt.Errorf("bind %s: %w", iface, err)
	}
	return version, nil
}

// Globals returns every announced global ordered by name.
func (r *Registry) Globals() []Global {
	r.mu.RLock()
	defer r.mu.RUnlock()

	globals := make([]Global, 0, len(r.globals))
	for _, g := range r.globals {
		globals = append(globals, g)
	}
	sort.Slice(globals, func(i, j int) bool { return globals[i].Name < globals[j].Name })
	return globals
}

// FindGlobal finds a global by interface name.
func (r *Registry) FindGlobal(iface string) (Global, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		found Global
		ok    bool
	)
	for _, g := range r.globals {
		if g.Interface == iface && (!ok || g.Name < found.Name) {
			found, ok = g, true
		}
	}
	return found, ok
}
