package memory

import (
	"context"

	"freelancehub/internal/domain/entity"
	"freelancehub/internal/domain/repository"
	"freelancehub/pkg/errors"
)

type UserRepository struct {
	s *Store
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.batches++
	if err := r.s.fault(OpUserLookup); err != nil {
		return nil, errors.Internal("Failed to fetch user", err)
	}
	u, ok := r.s.users[id]
	if !ok {
		return nil, errors.NotFound("User", nil)
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*entity.User, error) {
	result := make(map[string]*entity.User, len(ids))
	for start := 0; start < len(ids); start += repository.MaxBatchLookup {
		end := start + repository.MaxBatchLookup
		if end > len(ids) {
			end = len(ids)
		}
		if err := r.lookupBatch(ids[start:end], result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (r *UserRepository) lookupBatch(ids []string, into map[string]*entity.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.batches++
	if err := r.s.fault(OpUserLookup); err != nil {
		return errors.Internal("Failed to fetch users", err)
	}
	for _, id := range ids {
		if u, ok := r.s.users[id]; ok {
			cp := *u
			into[id] = &cp
		}
	}
	return nil
}
