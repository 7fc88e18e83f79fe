package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"freelancehub/internal/domain/entity"
	"freelancehub/internal/domain/repository"
	"freelancehub/pkg/errors"
	"freelancehub/pkg/logger"
)

type firestoreUserRepository struct {
	client *firestore.Client
}

func NewFirestoreUserRepository(client *firestore.Client) repository.UserRepository {
	return &firestoreUserRepository{
		client: client,
	}
}

func (r *firestoreUserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	doc, err := r.client.Collection("users").Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("User", err)
		}
		return nil, errors.Internal("Failed to get user", err)
	}
	return decodeUser(doc)
}

func (r *firestoreUserRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*entity.User, error) {
	users := make(map[string]*entity.User, len(ids))
	for start := 0; start < len(ids); start += repository.MaxBatchLookup {
		end := start + repository.MaxBatchLookup
		if end > len(ids) {
			end = len(ids)
		}

		refs := make([]*firestore.DocumentRef, 0, end-start)
		for _, id := range ids[start:end] {
			refs = append(refs, r.client.Collection("users").Doc(id))
		}
		docs, err := r.client.GetAll(ctx, refs)
		if err != nil {
			return nil, errors.Internal("Failed to fetch users", err)
		}
		for _, doc := range docs {
			if !doc.Exists() {
				continue
			}
			u, err := decodeUser(doc)
			if err != nil {
				logger.Warn("GetByIDs: skipping user %s: %v", doc.Ref.ID, err)
				continue
			}
			users[u.ID] = u
		}
	}
	return users, nil
}

func decodeUser(doc *firestore.DocumentSnapshot) (*entity.User, error) {
	var u entity.User
	if err := doc.DataTo(&u); err != nil {
		return nil, errors.Internal("Failed to parse user data", err)
	}
	if u.ID == "" {
		u.ID = doc.Ref.ID
	}
	return &u, nil
}
