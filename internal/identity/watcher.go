package identity

import (
	"sync"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/session"
)

// Watcher tracks signed-in identities and notifies subscribers on change.
type Watcher struct {
	mu      sync.Mutex
	current map[string]session.Principal
	subs    map[int]func(session.AuthEvent)
	nextID  int
}

func NewWatcher() *Watcher {
	return &Watcher{
		current: make(map[string]session.Principal),
		subs:    make(map[int]func(session.AuthEvent)),
	}
}

// OnAuthChange replays every signed-in identity to fn and then delivers each
// change. The returned func unsubscribes.
func (w *Watcher) OnAuthChange(fn func(session.AuthEvent)) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.subs[id] = fn
	replay := make([]session.Principal, 0, len(w.current))
	for _, p := range w.current {
		replay = append(replay, p)
	}
	w.mu.Unlock()

	for _, p := range replay {
		fn(session.AuthEvent{UserID: p.UserID, Principal: &p})
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.subs, id)
			w.mu.Unlock()
		})
	}
}

func (w *Watcher) signedIn(p session.Principal) {
	w.mu.Lock()
	if cur, ok := w.current[p.UserID]; ok && cur == p {
		w.mu.Unlock()
		return
	}
	w.current[p.UserID] = p
	subs := w.snapshot()
	w.mu.Unlock()

	for _, fn := range subs {
		fn(session.AuthEvent{UserID: p.UserID, Principal: &p})
	}
}

func (w *Watcher) signedOut(userID string) {
	w.mu.Lock()
	if _, ok := w.current[userID]; !ok {
		w.mu.Unlock()
		return
	}
	delete(w.current, userID)
	subs := w.snapshot()
	w.mu.Unlock()

	for _, fn := range subs {
		fn(session.AuthEvent{UserID: userID})
	}
}

func (w *Watcher) snapshot() []func(session.AuthEvent) {
	out := make([]func(session.AuthEvent), 0, len(w.subs))
	for _, fn := range w.subs {
		out = append(out, fn)
	}
	return out
}
