package patient

import "context"

// Store persists the dataset. Implementations return errors wrapping
// ErrStorageUnavailable when the medium cannot be reached or read.
type Store interface {
	// ReadAll returns every persisted record in storage order.
	ReadAll(ctx context.Context) (Dataset, error)

	// Append adds one record after all prior records.
	Append(ctx context.Context, r Record) error
}
