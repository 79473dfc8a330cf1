package cart

import (
	"sync"

	"github.com/KoushikPanda1729/client-ui/internal/domain"
)

// Change is published to subscribers after a state-changing dispatch.
type Change struct {
	Action Action
	State  State
}

// Store serialises dispatches for one cart and fans changes out to subscribers.
// Subscribers run on the dispatching goroutine, in dispatch order, and must not
// dispatch synchronously.
type Store struct {
	dispatch sync.Mutex
	mu       sync.Mutex
	state    State
	subs     map[int]func(Change)
	nextID   int
}

// NewStore returns an empty cart.
func NewStore() *Store {
	return &Store{subs: make(map[int]func(Change))}
}

// Dispatch applies a and returns the resulting state.
func (s *Store) Dispatch(a Action) (State, error) {
	s.dispatch.Lock()
	defer s.dispatch.Unlock()

	s.mu.Lock()
	next, changed, err := Reduce(s.state, a)
	if err != nil || !changed {
		snapshot := s.state.Clone()
		s.mu.Unlock()
		return snapshot, err
	}
	s.state = next
	subs := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(Change{Action: a, State: next.Clone()})
	}
	return next.Clone(), nil
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Subscribe registers fn for future changes and returns its cancel func.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// AddItem adds item and returns the line it landed on.
func (s *Store) AddItem(item domain.CartItem) (domain.CartItem, error) {
	normalized, err := normalizeItem(item)
	if err != nil {
		return domain.CartItem{}, err
	}
	state, err := s.Dispatch(Add(normalized))
	if err != nil {
		return domain.CartItem{}, err
	}
	key := lineKey(normalized)
	for _, line := range state.Items {
		if lineKey(line) == key {
			return line, nil
		}
	}
	return domain.CartItem{}, ErrInvalidItem
}

// UpdateQuantity overwrites a line's quantity; values below 1 are ignored.
func (s *Store) UpdateQuantity(id, quantity int) State {
	state, _ := s.Dispatch(UpdateQuantity(id, quantity))
	return state
}

// RemoveItem deletes a line.
func (s *Store) RemoveItem(id int) State {
	state, _ := s.Dispatch(Remove(id))
	return state
}

// Clear empties the cart.
func (s *Store) Clear() State {
	state, _ := s.Dispatch(Clear())
	return state
}

// SelectTenant switches restaurant.
func (s *Store) SelectTenant(t domain.Tenant) State {
	state, _ := s.Dispatch(SelectTenant(t))
	return state
}
