package login

import (
	"sort"
	"sync"
	"time"
)

// Registry tracks in-flight attempts keyed by phone number. It acts as a set of
// per-phone locks: a phone can hold at most one attempt, and an attempt can be
// worked on by one caller at a time (the busy flag). The mutex is held only for
// map bookkeeping, never across provider calls.
type Registry struct {
	mu       sync.Mutex
	attempts map[string]*Attempt
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		attempts: make(map[string]*Attempt),
	}
}

// Register inserts a if its phone has no attempt yet; otherwise ErrAlreadyExists.
func (r *Registry) Register(a *Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.attempts[a.Phone]; exists {
		return ErrAlreadyExists
	}
	r.attempts[a.Phone] = a
	return nil
}

// Get returns the attempt registered for phone, if any
func (r *Registry) Get(phone string) (*Attempt, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[phone]
	return a, ok
}

// Remove drops whatever attempt is registered for phone
func (r *Registry) Remove(phone string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attempts, phone)
}

// Len returns the number of registered attempts
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.attempts)
}

// removeAttempt drops a only if it is still the registered attempt for its phone.
func (r *Registry) removeAttempt(a *Attempt) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.attempts[a.Phone]; ok && cur == a {
		delete(r.attempts, a.Phone)
		return true
	}
	return false
}

// acquire marks the attempt for phone busy and returns it together with its
// state at acquisition time.
func (r *Registry) acquire(phone string) (*Attempt, State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[phone]
	if !ok {
		return nil, 0, ErrNoSuchAttempt
	}
	if a.busy {
		return nil, 0, ErrAttemptInProgress
	}
	a.busy = true
	return a, a.state, nil
}

// release stores the new state and clears the busy flag
func (r *Registry) release(a *Attempt, state State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.state = state
	a.busy = false
}

// retire records a terminal state. The attempt stays busy so nothing can
// acquire it before it is removed.
func (r *Registry) retire(a *Attempt, state State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.state = state
}

// expired removes and returns every idle attempt created before cutoff.
func (r *Registry) expired(cutoff time.Time) []*Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Attempt
	for phone, a := range r.attempts {
		if a.busy || !a.CreatedAt.Before(cutoff) {
			continue
		}
		delete(r.attempts, phone)
		out = append(out, a)
	}
	return out
}

// Snapshot returns all registered attempts, oldest first
func (r *Registry) Snapshot() []AttemptInfo {
	r.mu.Lock()
	out := make([]AttemptInfo, 0, len(r.attempts))
	for _, a := range r.attempts {
		out = append(out, AttemptInfo{
			ID:        a.ID,
			Phone:     a.Phone,
			State:     a.state,
			CreatedAt: a.CreatedAt,
		})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Phone < out[j].Phone
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
