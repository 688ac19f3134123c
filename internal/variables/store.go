// Package variables holds captured values scoped to one virtual-user run.
package variables

// Store is the capture namespace for a single virtual-user run. Each run
// owns exactly one store; steps within the run execute sequentially, so no
// locking is needed.
type Store struct {
	values map[string]string
}

// NewStore returns an empty store, optionally seeded with initial values
// (e.g. a feeder record). Seed maps are copied.
func NewStore(seed map[string]string) *Store {
	values := make(map[string]string, len(seed))
	for k, v := range seed {
		values[k] = v
	}
	return &Store{values: values}
}

// Set stores a captured value under the given name.
func (s *Store) Set(name, value string) {
	s.values[name] = value
}

// Get returns the value captured under name, and whether it exists.
func (s *Store) Get(name string) (string, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Len returns the number of captured values.
func (s *Store) Len() int {
	return len(s.values)
}

// All returns a copy of every captured value.
func (s *Store) All() map[string]string {
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
