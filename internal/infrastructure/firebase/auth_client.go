package firebase

import (
	"context"
	"time"

	"firebase.google.com/go/v4/auth"
)

type FirebaseAuthClient struct {
	client *auth.Client
}

func NewFirebaseAuthClient(client *auth.Client) *FirebaseAuthClient {
	return &FirebaseAuthClient{
		client: client,
	}
}

// Identity is the verified subject of an ID token.
type Identity struct {
	UID     string
	Expires time.Time
}

func (f *FirebaseAuthClient) VerifyToken(ctx context.Context, token string) (*Identity, error) {
	result, err := f.client.VerifyIDToken(ctx, token)
	if err != nil {
		return nil, err
	}

	return &Identity{
		UID:     result.UID,
		Expires: time.Unix(result.Expires, 0),
	}, nil
}
