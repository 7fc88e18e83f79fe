package repository

import (
	"context"
	"sync"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"freelancehub/internal/domain/repository"
	"freelancehub/pkg/logger"
)

// listenQuery runs a query snapshot listener until ctx is done or the
// returned function is called. Every snapshot is delivered in full.
func listenQuery(ctx context.Context, query firestore.Query, name string, onSnapshot func(*firestore.QuerySnapshot) error, onError func(error)) repository.Unsubscribe {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		it := query.Snapshots(ctx)
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err == nil {
				err = onSnapshot(snap)
			}
			if err != nil {
				reportListenError(ctx, name, err, onError)
				return
			}
		}
	}()
	return stopOnce(cancel)
}

// listenDocument is listenQuery for a single document.
func listenDocument(ctx context.Context, ref *firestore.DocumentRef, name string, onSnapshot func(*firestore.DocumentSnapshot) error, onError func(error)) repository.Unsubscribe {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		it := ref.Snapshots(ctx)
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err == nil {
				err = onSnapshot(snap)
			}
			if err != nil {
				reportListenError(ctx, name, err, onError)
				return
			}
		}
	}()
	return stopOnce(cancel)
}

func reportListenError(ctx context.Context, name string, err error, onError func(error)) {
	if ctx.Err() != nil || status.Code(err) == codes.Canceled {
		return
	}
	logger.Error("Listener %s stopped: %v", name, err)
	if onError != nil {
		onError(err)
	}
}

func stopOnce(cancel context.CancelFunc) repository.Unsubscribe {
	var once sync.Once
	return func() { once.Do(cancel) }
}
