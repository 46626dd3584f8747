// Package signals routes OS signals to at most one handler per signal.
//
// A Router is process wide by nature: the OS delivers signals to the process,
// not to a worker handle. It is created by the first top-level supervisor in
// a process and passed by reference to every handle that needs it. Several
// routers may still coexist; a signal gets its default disposition back only
// when the last router holding it lets go.
package signals

import (
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
)

// holders counts, per signal, the routers with a handler installed
var holders = struct {
	sync.Mutex
	count map[os.Signal]int
}{count: make(map[os.Signal]int)}

func hold(c chan<- os.Signal, sig os.Signal) {
	holders.Lock()
	defer holders.Unlock()
	holders.count[sig]++
	signal.Notify(c, sig)
}

func release(sig os.Signal) {
	holders.Lock()
	defer holders.Unlock()
	if holders.count[sig]--; holders.count[sig] > 0 {
		return
	}
	delete(holders.count, sig)
	signal.Reset(sig)
}

// Holders returns how many routers in the process handle sig
func Holders(sig os.Signal) int {
	holders.Lock()
	defer holders.Unlock()
	return holders.count[sig]
}

// pendingBuffer is the number of undelivered signals the router holds
const pendingBuffer = 16

// Handler is invoked with the signal that was received
type Handler func(sig os.Signal)

// Router maps a signal to a single active handler.
//
// Router is not safe for concurrent use. Registration and Poll are expected
// to happen on the supervisor loop goroutine.
type Router struct {
	handlers map[os.Signal]Handler
	pending  chan os.Signal
}

// NewRouter creates an empty router
func NewRouter() *Router {
	return &Router{
		handlers: make(map[os.Signal]Handler),
		pending:  make(chan os.Signal, pendingBuffer),
	}
}

// Register installs h for sig, replacing any previous handler.
// A nil handler unregisters sig.
func (r *Router) Register(sig os.Signal, h Handler) {
	if h == nil {
		r.Unregister(sig)
		return
	}
	if _, ok := r.handlers[sig]; !ok {
		hold(r.pending, sig)
	}
	r.handlers[sig] = h
}

// Unregister removes the handler for sig. The default disposition is
// restored once no other router handles sig.
func (r *Router) Unregister(sig os.Signal) {
	if _, ok := r.handlers[sig]; !ok {
		return
	}
	delete(r.handlers, sig)
	release(sig)
}

// Reset unregisters every signal and stops delivery to this router
func (r *Router) Reset() {
	for _, sig := range r.Signals() {
		r.Unregister(sig)
	}
	signal.Stop(r.pending)
}

// Signals returns the registered signals in numeric order
func (r *Router) Signals() []os.Signal {
	sigs := make([]os.Signal, 0, len(r.handlers))
	for sig := range r.handlers {
		sigs = append(sigs, sig)
	}
	sort.Slice(sigs, func(i, j int) bool {
		return signalNumber(sigs[i]) < signalNumber(sigs[j])
	})
	return sigs
}

// Registered reports whether sig has a handler
func (r *Router) Registered(sig os.Signal) bool {
	_, ok := r.handlers[sig]
	return ok
}

// Dispatch runs the handler for sig on the calling goroutine.
// Returns false if no handler is registered.
func (r *Router) Dispatch(sig os.Signal) bool {
	h, ok := r.handlers[sig]
	if !ok {
		return false
	}
	h(sig)
	return true
}

// Poll dispatches every signal received since the last call without
// blocking and returns how many were dispatched.
func (r *Router) Poll() int {
	n := 0
	for {
		select {
		case sig := <-r.pending:
			if r.Dispatch(sig) {
				n++
			}
		default:
			return n
		}
	}
}

func signalNumber(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return int(s)
	}
	return -1
}
