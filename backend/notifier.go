package backend

import "sync"

// notifier implements the session-change notification stream shared by the
// backend implementations. Delivery is synchronous, in subscription order.
type notifier struct {
	mu     sync.Mutex
	nextID int
	subs   []*subscriber
}

type subscriber struct {
	id int
	fn func(*Session)
}

func (n *notifier) subscribe(fn func(*Session)) (unsubscribe func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.subs = append(n.subs, &subscriber{id: id, fn: fn})

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()

		for i, sub := range n.subs {
			if sub.id == id {
				n.subs = append(n.subs[:i], n.subs[i+1:]...)

				return
			}
		}
	}
}

func (n *notifier) notify(sess *Session) {
	n.mu.Lock()
	subs := make([]*subscriber, len(n.subs))
	copy(subs, n.subs)
	n.mu.Unlock()

	// Callbacks run outside the lock so a subscriber may unsubscribe itself.
	for _, sub := range subs {
		sub.fn(sess)
	}
}
