package routes

import "sync"

// TaskNotifier fans replica-change signals out to SSE streams. Each
// subscriber owns a one-slot channel, so a burst of changes collapses into a
// single pending signal per stream and a slow client never blocks the event
// loop. Notify satisfies the dispatcher's notifier contract.
type TaskNotifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan struct{}
}

// NewTaskNotifier creates an empty notifier.
func NewTaskNotifier() *TaskNotifier {
	return &TaskNotifier{subs: make(map[int]chan struct{})}
}

// Subscribe registers a listener and returns its signal channel along with a
// cancel function. Call cancel when the stream ends.
func (tn *TaskNotifier) Subscribe() (<-chan struct{}, func()) {
	tn.mu.Lock()
	defer tn.mu.Unlock()

	id := tn.nextID
	tn.nextID++
	ch := make(chan struct{}, 1)
	tn.subs[id] = ch

	return ch, func() {
		tn.mu.Lock()
		defer tn.mu.Unlock()
		delete(tn.subs, id)
	}
}

// Notify signals every subscriber that replicated state changed. Subscribers
// with a signal already pending are skipped.
func (tn *TaskNotifier) Notify() {
	tn.mu.Lock()
	defer tn.mu.Unlock()
	for _, ch := range tn.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
