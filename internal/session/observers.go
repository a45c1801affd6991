package session

import "sync"

// observers fans published states out to subscribers. Delivery is
// latest-wins: a slow subscriber loses intermediate states, never the
// newest one.
type observers struct {
	mu     sync.RWMutex
	subs   map[int]chan State
	nextID int
}

func newObservers() *observers {
	return &observers{subs: make(map[int]chan State)}
}

// subscribe reads the initial state under the lock so it cannot miss a
// broadcast racing with the subscription.
func (o *observers) subscribe(current func() State) (int, <-chan State) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextID
	o.nextID++
	ch := make(chan State, 1)
	ch <- current()
	o.subs[id] = ch
	return id, ch
}

func (o *observers) unsubscribe(id int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if ch, ok := o.subs[id]; ok {
		close(ch)
		delete(o.subs, id)
	}
}

func (o *observers) broadcast(s State) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	for _, ch := range o.subs {
		select {
		case ch <- s:
			continue
		default:
		}
		// Drop the stale value and retry once.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

func (o *observers) count() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.subs)
}
