package wlpresent

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Context ties proxies to the display they were created on.
type Context struct {
	display *Display
}

// Proxy is a client-side Wayland object.
type Proxy interface {
	Object
	SetID(uint32)
	SetContext(*Context)
	Context() *Context
	Dispatch(*Event)
}

// BaseProxy provides base implementation for protocol objects
type BaseProxy struct {
	id      uint32
	context *Context
}

// Event is one inbound message. It is only valid during Dispatch.
type Event struct {
	ProxyID uint32
	Opcode  uint16
	data    []byte
	offset  int
}

// Data returns the raw event data
func (e *Event) Data() []byte {
	return e.data
}

// SendRequest sends a request on behalf of proxy.
func (c *Context) SendRequest(proxy Object, opcode uint16, args ...any) error {
	return c.display.SendRequest(proxy.ID(), opcode, args...)
}

// Register makes proxy receive events for its id.
func (c *Context) Register(proxy Proxy) {
	if proxy != nil && proxy.ID() != 0 {
		c.display.objects.Store(proxy.ID(), proxy)
	}
}

// Unregister stops event delivery to proxy.
func (c *Context) Unregister(proxy Proxy) {
	if proxy != nil {
		c.display.objects.Delete(proxy.ID())
	}
}

// AllocateID allocates a new object ID
func (c *Context) AllocateID() uint32 {
	return c.display.allocateID()
}

// Display returns the connection.
func (c *Context) Display() *Display {
	return c.display
}

// newProxy fills in a fresh id and registers p before the request that
// creates it is sent, so no event can be missed.
func (c *Context) newProxy(p Proxy) {
	p.SetContext(c)
	p.SetID(c.AllocateID())
	c.Register(p)
}

// create sends a constructor request for p, undoing the registration if
// it cannot be queued.
func (c *Context) create(parent Object, opcode uint16, p Proxy, args ...any) error {
	c.newProxy(p)
	if err := c.SendRequest(parent, opcode, append([]any{p.ID()}, args...)...); err != nil {
		c.Unregister(p)
		return err
	}
	return nil
}

// destroy sends a destructor request and stops event delivery.
func (c *Context) destroy(p Proxy, opcode uint16) error {
	c.Unregister(p)
	return c.SendRequest(p, opcode)
}

// ID returns the proxy's object ID
func (p *BaseProxy) ID() uint32 {
	return p.id
}

// SetID sets the proxy's object ID
func (p *BaseProxy) SetID(id uint32) {
	p.id = id
}

// Context returns the proxy's context
func (p *BaseProxy) Context() *Context {
	return p.context
}

// SetContext sets the proxy's context
func (p *BaseProxy) SetContext(ctx *Context) {
	p.context = ctx
}

// Dispatch default implementation (does nothing)
func (p *BaseProxy) Dispatch(event *Event) {}

func (p *BaseProxy) display() *Display {
	return p.context.display
}

func interfaceName(obj Object) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", obj), "*wlpresent.")
}

// Uint32 reads a uint32 from the event
func (e *Event) Uint32() uint32 {
	if e.offset+4 > len(e.data) {
		return 0
	}
	val := binary.LittleEndian.Uint32(e.data[e.offset:])
	e.offset += 4
	return val
}

// Int32 reads an int32 from the event
func (e *Event) Int32() int32 {
	return int32(e.Uint32())
}

// String reads a string from the event
func (e *Event) String() string {
	strlen := int(e.Uint32())
	if strlen == 0 || e.offset+strlen > len(e.data) {
		return ""
	}
	// The length includes the terminator
	str := string(e.data[e.offset : e.offset+strlen-1])
	e.offset += strlen + (4-strlen%4)%4
	return str
}

// Array reads a byte array from the event
func (e *Event) Array() []byte {
	arrlen := int(e.Uint32())
	if arrlen == 0 || e.offset+arrlen > len(e.data) {
		return nil
	}
	arr := make([]byte, arrlen)
	copy(arr, e.data[e.offset:e.offset+arrlen])
	e.offset += arrlen + (4-arrlen%4)%4
	return arr
}

// Uint32Array reads an array argument of uint32 values.
func (e *Event) Uint32Array() []uint32 {
	arr := e.Array()
	vals := make([]uint32, 0, len(arr)/4)
	for i := 0; i+4 <= len(arr); i += 4 {
		vals = append(vals, binary.LittleEndian.Uint32(arr[i:]))
	}
	return vals
}

// Callback is a wl_callback.
type Callback struct {
	BaseProxy
	done func(data uint32)
}

func newCallback(ctx *Context, done func(data uint32)) *Callback {
	cb := &Callback{done: done}
	ctx.newProxy(cb)
	return cb
}

// Dispatch handles done (0). The compositor destroys the callback after
// it fires.
func (c *Callback) Dispatch(event *Event) {
	if event.Opcode != 0 {
		return
	}
	data := event.Uint32()
	c.context.Unregister(c)
	if c.done != nil {
		c.done(data)
	}
}

// Compositor is a wl_compositor.
type Compositor struct {
	BaseProxy
}

// CreateSurface creates a new surface
func (c *Compositor) CreateSurface() (*Surface, error) {
	s := &Surface{}
	if err := c.context.create(c, 0, s); err != nil {
		return nil, err
	}
	return s, nil
}

// CreateRegion creates a new region
func (c *Compositor) CreateRegion() (*Region, error) {
	r := &Region{}
	if err := c.context.create(c, 1, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Surface is a wl_surface.
type Surface struct {
	BaseProxy
}

// Destroy destroys the surface
func (s *Surface) Destroy() error {
	return s.context.destroy(s, 0)
}

// Attach attaches a buffer to the surface; nil detaches.
func (s *Surface) Attach(buffer *Buffer, x, y int32) error {
	if buffer == nil {
		return s.context.SendRequest(s, 1, nil, x, y)
	}
	return s.context.SendRequest(s, 1, buffer, x, y)
}

// Frame requests a callback for the next frame this surface is shown in.
func (s *Surface) Frame(done func(time uint32)) (*Callback, error) {
	cb := &Callback{done: done}
	if err := s.context.create(s, 3, cb); err != nil {
		return nil, err
	}
	return cb, nil
}

// SetOpaqueRegion sets the opaque region; nil clears it.
func (s *Surface) SetOpaqueRegion(region *Region) error {
	if region == nil {
		return s.context.SendRequest(s, 4, nil)
	}
	return s.context.SendRequest(s, 4, region)
}

// Commit commits pending surface state
func (s *Surface) Commit() error {
	return s.context.SendRequest(s, 6)
}

// DamageBuffer marks a region of the buffer as damaged, in buffer
// coordinates (wl_compositor version 4).
func (s *Surface) DamageBuffer(x, y, width, height int32) error {
	return s.context.SendRequest(s, 9, x, y, width, height)
}

// Dispatch ignores enter, leave and preferred scale/transform hints.
func (s *Surface) Dispatch(event *Event) {}

// Region is a wl_region.
type Region struct {
	BaseProxy
}

// Add adds a rectangle to the region
func (r *Region) Add(x, y, width, height int32) error {
	return r.context.SendRequest(r, 1, x, y, width, height)
}

// Destroy destroys the region
func (r *Region) Destroy() error {
	return r.context.destroy(r, 0)
}
