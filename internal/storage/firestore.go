package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/dgellow/statusboard/internal/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var _ Store = (*FirestoreStore)(nil)
var _ Taker = (*FirestoreStore)(nil)

// kvDoc is the document shape for a single key. The key itself is the
// document ID.
type kvDoc struct {
	Value     string    `firestore:"value"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// FirestoreStore keeps each key as a document in one collection.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore connects to the given project and database
func NewFirestoreStore(ctx context.Context, projectID, database, collection string) (*FirestoreStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}
	if collection == "" {
		collection = "statusboard_kv"
	}

	var client *firestore.Client
	var err error
	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	log.LogInfoWithFields("storage", "Connected to Firestore", map[string]any{
		"project":    projectID,
		"database":   database,
		"collection": collection,
	})

	return &FirestoreStore{
		client:     client,
		collection: collection,
	}, nil
}

func (s *FirestoreStore) doc(key string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(key)
}

func (s *FirestoreStore) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}

	snap, err := s.doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get %s from Firestore: %w", key, err)
	}

	var d kvDoc
	if err := snap.DataTo(&d); err != nil {
		return "", false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return d.Value, true, nil
}

func (s *FirestoreStore) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}

	_, err := s.doc(key).Set(ctx, kvDoc{Value: value, UpdatedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to set %s in Firestore: %w", key, err)
	}
	return nil
}

func (s *FirestoreStore) Delete(ctx context.Context, key string) error {
	if _, err := s.doc(key).Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to delete %s from Firestore: %w", key, err)
	}
	return nil
}

var errTakeMissing = errors.New("document missing")

// Take reads and deletes the document inside one transaction.
func (s *FirestoreStore) Take(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}

	ref := s.doc(key)
	var value string
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return errTakeMissing
			}
			return fmt.Errorf("failed to get %s: %w", key, err)
		}

		var d kvDoc
		if err := snap.DataTo(&d); err != nil {
			return fmt.Errorf("failed to unmarshal %s: %w", key, err)
		}
		value = d.Value
		return tx.Delete(ref)
	})
	if errors.Is(err, errTakeMissing) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to take %s from Firestore: %w", key, err)
	}
	return value, true, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
