// Package exception multiplexes host exceptions to registered handlers.
//
// One Dispatcher stands in for the single OS-level handler of a process:
// whatever catches the fault (a signal bridge, or the emulated host in
// go/cpu/unicorn) calls Dispatch, and registrations are consulted in order.
package exception

import (
	"sync"
	"sync/atomic"

	"github.com/ST3ALth/xenia/go/models"
)

// Handler returns true if it claimed the exception.
type Handler func(ex *models.Exception) bool

// Filter decides whether a handler wants to see an exception at all.
type Filter func(ex *models.Exception) bool

func IllegalInstruction(ex *models.Exception) bool {
	return ex.Code == models.ExceptionIllegalInstruction
}

type Registration struct {
	Name    string
	filter  Filter
	handler Handler
}

type Dispatcher struct {
	mu sync.Mutex
	// copy-on-write so Dispatch never takes mu
	list atomic.Pointer[[]*Registration]
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Default is the process-wide dispatcher.
var Default = NewDispatcher()

func (d *Dispatcher) Register(name string, filter Filter, handler Handler) *Registration {
	r := &Registration{Name: name, filter: filter, handler: handler}
	d.mu.Lock()
	defer d.mu.Unlock()
	var next []*Registration
	if cur := d.list.Load(); cur != nil {
		next = append(next, *cur...)
	}
	next = append(next, r)
	d.list.Store(&next)
	return r
}

func (d *Dispatcher) Unregister(r *Registration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur := d.list.Load()
	if cur == nil {
		return false
	}
	next := make([]*Registration, 0, len(*cur))
	found := false
	for _, v := range *cur {
		if v == r {
			found = true
			continue
		}
		next = append(next, v)
	}
	d.list.Store(&next)
	return found
}

// Dispatch offers ex to each matching handler in registration order and
// stops at the first one that claims it.
func (d *Dispatcher) Dispatch(ex *models.Exception) bool {
	cur := d.list.Load()
	if cur == nil {
		return false
	}
	for _, r := range *cur {
		if r.filter != nil && !r.filter(ex) {
			continue
		}
		if r.handler(ex) {
			return true
		}
	}
	return false
}

func (d *Dispatcher) Len() int {
	if cur := d.list.Load(); cur != nil {
		return len(*cur)
	}
	return 0
}
