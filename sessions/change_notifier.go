package sessions

import "sync"

// ChangeNotifier is an in-process fan-out of "the document changed" signals.
// Backends call Notify after a mutation they applied or observed; stores hand
// out Subscriber channels through Store.Changes.
type ChangeNotifier struct {
	mu          sync.RWMutex
	subscribers []chan struct{}
	closed      bool
}

// Notify signals every subscriber without blocking. A subscriber that has not
// drained its previous signal does not get a second one.
func (cn *ChangeNotifier) Notify() {
	cn.mu.RLock()
	defer cn.mu.RUnlock()

	if cn.closed {
		return
	}
	for _, ch := range cn.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscriber returns a channel with capacity 1 that receives a signal after
// each Notify. It is closed by Close.
func (cn *ChangeNotifier) Subscriber() <-chan struct{} {
	cn.mu.Lock()
	defer cn.mu.Unlock()

	if cn.closed {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	ch := make(chan struct{}, 1)
	cn.subscribers = append(cn.subscribers, ch)
	return ch
}

func (cn *ChangeNotifier) Close() {
	cn.mu.Lock()
	if cn.closed {
		cn.mu.Unlock()
		return
	}
	cn.closed = true
	subs := cn.subscribers
	cn.subscribers = nil
	cn.mu.Unlock()

	for _, ch := range subs {
		close(ch)
	}
}
