package lazyload

import (
	"sync"

	"github.com/hazyhaar/lazyload/lazyload/event"
)

// dispatcher delivers load events to OnLoad in order on its own goroutine,
// so the hook may call back into the Scheduler.
type dispatcher struct {
	fn func(event.Load)

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []event.Load
	busy   bool
	closed bool
}

func newDispatcher(fn func(event.Load)) *dispatcher {
	d := &dispatcher{fn: fn}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

// push queues evs behind everything queued before.
func (d *dispatcher) push(evs []event.Load) {
	if len(evs) == 0 {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.queue = append(d.queue, evs...)
		d.cond.Broadcast()
	}
	d.mu.Unlock()
}

// close lets the goroutine exit once the queue is drained.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
}

// idle blocks until every queued event has been delivered. It must not be
// called from OnLoad.
func (d *dispatcher) idle() {
	d.mu.Lock()
	for len(d.queue) > 0 || d.busy {
		d.cond.Wait()
	}
	d.mu.Unlock()
}

func (d *dispatcher) run() {
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		batch := d.queue
		d.queue = nil
		d.busy = true
		d.mu.Unlock()

		for _, ev := range batch {
			d.fn(ev)
		}

		d.mu.Lock()
		d.busy = false
		d.cond.Broadcast()
		d.mu.Unlock()
	}
}
