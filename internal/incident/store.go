package incident

import "context"

// MutateFunc changes an incident in place. Returning an error aborts the mutation.
type MutateFunc func(inc *Incident) error

// Store is the persistence interface for incidents.
//
// Implementations must apply Update atomically: fn sees a private copy and the
// result is committed as a unit or not at all. Readers never observe a partially
// applied update.
type Store interface {
	Create(ctx context.Context, inc *Incident) error
	Get(ctx context.Context, id string) (*Incident, bool, error)
	List(ctx context.Context) ([]*Incident, error)
	Update(ctx context.Context, id string, fn MutateFunc) (*Incident, bool, error)
}
