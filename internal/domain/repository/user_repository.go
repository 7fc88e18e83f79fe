package repository

import (
	"context"

	"freelancehub/internal/domain/entity"
)

// MaxBatchLookup is the physical batch size of one profile lookup.
const MaxBatchLookup = 10

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*entity.User, error)
	// GetByIDs chunks ids into batches of MaxBatchLookup. Unknown ids are
	// omitted from the result.
	GetByIDs(ctx context.Context, ids []string) (map[string]*entity.User, error)
}
