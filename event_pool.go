package wlpresent

import (
	"sync"
	"sync/atomic"
)

// Event pool for zero-allocation event delivery
var eventPool = sync.Pool{
	New: func() any {
		return &Event{}
	},
}

// lowObjects covers the ids a client normally uses; delete_id recycling
// keeps ids small.
const lowObjects = 1024

// objectTable maps object ids to proxies. Lookups on the dispatch path
// are lock-free for low ids.
type objectTable struct {
	low  [lowObjects]atomic.Pointer[objectEntry]
	high sync.Map // map[uint32]Proxy
}

type objectEntry struct {
	proxy Proxy
}

func (t *objectTable) Store(id uint32, p Proxy) {
	if id < lowObjects {
		t.low[id].Store(&objectEntry{proxy: p})
		return
	}
	t.high.Store(id, p)
}

func (t *objectTable) Load(id uint32) (Proxy, bool) {
	if id < lowObjects {
		e := t.low[id].Load()
		if e == nil {
			return nil, false
		}
		return e.proxy, true
	}
	p, ok := t.high.Load(id)
	if !ok {
		return nil, false
	}
	return p.(Proxy), true
}

func (t *objectTable) Delete(id uint32) {
	if id < lowObjects {
		t.low[id].Store(nil)
		return
	}
	t.high.Delete(id)
}

// Len counts registered objects.
func (t *objectTable) Len() int {
	n := 0
	for i := range t.low {
		if t.low[i].Load() != nil {
			n++
		}
	}
	t.high.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}
