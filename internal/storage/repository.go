package storage

import (
	"context"
	"errors"

	"limoni/internal/domain"
)

var (
	// ErrCollectionNotFound is returned when an operation names a collection
	// that does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidName is returned when a collection name is empty.
	ErrInvalidName = errors.New("collection name must not be empty")
)

// Repository defines the storage operations over the archive document.
// Every mutating call is a single atomic read-modify-write of the whole
// document.
type Repository interface {
	// GetData returns the whole document, or an empty one if nothing is stored.
	GetData(ctx context.Context) (*domain.StorageData, error)

	GetCollections(ctx context.Context) ([]domain.Collection, error)
	GetCollection(ctx context.Context, collectionID string) (*domain.Collection, error)

	// CreateCollection adds a new empty collection. The first collection
	// becomes the default.
	CreateCollection(ctx context.Context, name, description string) (*domain.Collection, error)

	// UpdateCollection changes only the fields that are non-nil.
	UpdateCollection(ctx context.Context, collectionID string, name, description *string) (*domain.Collection, error)

	// AddEntry upserts entry into the named collection. An empty collectionID
	// targets the default collection, creating one if none exist.
	AddEntry(ctx context.Context, entry domain.Entry, collectionID string) (*domain.Collection, error)

	DeleteEntry(ctx context.Context, collectionID, entryID string) error
	DeleteCollection(ctx context.Context, collectionID string) error

	GetSettings(ctx context.Context) (domain.Settings, error)
	UpdateSettings(ctx context.Context, patch domain.SettingsPatch) (domain.Settings, error)

	// EnsureDefaultCollection creates the initial collection when the store
	// is empty and reports whether it did.
	EnsureDefaultCollection(ctx context.Context) (bool, error)

	// Close gracefully shuts down the repository connection.
	Close() error
}
