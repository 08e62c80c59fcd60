package audit

import "context"

// Repository is the audit sink. Mutating modules bundle their audit writes
// into the same transaction as the mutation; this interface serves the
// standalone append and the query surface.
type Repository interface {
	Append(ctx context.Context, e *Entry) error
	List(ctx context.Context, q Query) ([]*Entry, error)
}
