package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"limoni/internal/domain"
)

// dataKey is the single key the whole archive document lives under.
var dataKey = []byte("limoni_data")

// BadgerRepository implements the Repository interface using BadgerDB.
type BadgerRepository struct {
	db  *badger.DB
	log logrus.FieldLogger

	// writeMu serializes read-modify-write cycles so concurrent updates
	// never race into badger.ErrConflict.
	writeMu sync.Mutex

	now   func() time.Time
	newID func() string
}

// NewBadgerRepository creates and initializes a new BadgerDB repository.
// It opens the database at the specified path.
func NewBadgerRepository(dbPath string, logger logrus.FieldLogger) (*BadgerRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = &badgerLogger{logger.WithField("component", "badgerdb")}

	db, err := badger.Open(opts)
	if err != nil {
		logger.WithError(err).Error("Failed to open BadgerDB")
		return nil, fmt.Errorf("failed to open badger db at %s: %w", dbPath, err)
	}
	logger.Info("BadgerDB opened successfully at path: ", dbPath)

	return &BadgerRepository{
		db:    db,
		log:   logger.WithField("component", "repository"),
		now:   time.Now,
		newID: uuid.NewString,
	}, nil
}

// Close closes the BadgerDB database connection.
func (r *BadgerRepository) Close() error {
	r.log.Info("Closing BadgerDB...")
	err := r.db.Close()
	if err != nil {
		r.log.WithError(err).Error("Error closing BadgerDB")
		return err
	}
	r.log.Info("BadgerDB closed.")
	return nil
}

// load reads the document inside txn. A missing key yields an empty document.
func (r *BadgerRepository) load(txn *badger.Txn) (*domain.StorageData, error) {
	item, err := txn.Get(dataKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.NewStorageData(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read archive document: %w", err)
	}

	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to copy archive document: %w", err)
	}

	data := domain.NewStorageData()
	if err := json.Unmarshal(raw, data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal archive document: %w", err)
	}
	if data.Collections == nil {
		data.Collections = []domain.Collection{}
	}
	for i := range data.Collections {
		if data.Collections[i].Entries == nil {
			data.Collections[i].Entries = []domain.Entry{}
		}
	}
	return data, nil
}

func (r *BadgerRepository) save(txn *badger.Txn, data *domain.StorageData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal archive document: %w", err)
	}
	return txn.SetEntry(badger.NewEntry(dataKey, raw))
}

// view runs fn against a read-only snapshot of the document.
func (r *BadgerRepository) view(ctx context.Context, fn func(*domain.StorageData) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.View(func(txn *badger.Txn) error {
		data, err := r.load(txn)
		if err != nil {
			return err
		}
		return fn(data)
	})
}

// mutate loads the document, applies fn and writes it back in one transaction.
// Nothing is written when fn returns an error.
func (r *BadgerRepository) mutate(ctx context.Context, fn func(*domain.StorageData) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	return r.db.Update(func(txn *badger.Txn) error {
		data, err := r.load(txn)
		if err != nil {
			return err
		}
		if err := fn(data); err != nil {
			return err
		}
		return r.save(txn, data)
	})
}

func (r *BadgerRepository) millis() int64 {
	return r.now().UnixMilli()
}

func (r *BadgerRepository) newCollection(name, description string) domain.Collection {
	ts := r.millis()
	return domain.Collection{
		ID:          r.newID(),
		Name:        name,
		Description: description,
		CreatedAt:   ts,
		UpdatedAt:   ts,
		Entries:     []domain.Entry{},
	}
}

// GetData returns a copy of the stored document.
func (r *BadgerRepository) GetData(ctx context.Context) (*domain.StorageData, error) {
	var out *domain.StorageData
	err := r.view(ctx, func(data *domain.StorageData) error {
		out = data
		return nil
	})
	if err != nil {
		r.log.WithError(err).Error("Failed to read archive document")
		return nil, err
	}
	return out, nil
}

// GetCollections returns all collections in creation order.
func (r *BadgerRepository) GetCollections(ctx context.Context) ([]domain.Collection, error) {
	data, err := r.GetData(ctx)
	if err != nil {
		return nil, err
	}
	return data.Collections, nil
}

// GetCollection returns one collection or ErrCollectionNotFound.
func (r *BadgerRepository) GetCollection(ctx context.Context, collectionID string) (*domain.Collection, error) {
	data, err := r.GetData(ctx)
	if err != nil {
		return nil, err
	}
	c := data.Collection(collectionID)
	if c == nil {
		return nil, fmt.Errorf("get collection %s: %w", collectionID, ErrCollectionNotFound)
	}
	return c, nil
}

// CreateCollection stores a new empty collection.
func (r *BadgerRepository) CreateCollection(ctx context.Context, name, description string) (*domain.Collection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	log := r.log.WithField("name", name)

	c := r.newCollection(name, strings.TrimSpace(description))
	err := r.mutate(ctx, func(data *domain.StorageData) error {
		data.AddCollection(c)
		return nil
	})
	if err != nil {
		log.WithError(err).Error("Failed to create collection")
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	log.WithField("collection_id", c.ID).Info("Collection created")
	return &c, nil
}

// UpdateCollection renames and/or re-describes a collection.
func (r *BadgerRepository) UpdateCollection(ctx context.Context, collectionID string, name, description *string) (*domain.Collection, error) {
	log := r.log.WithField("collection_id", collectionID)

	var updated domain.Collection
	err := r.mutate(ctx, func(data *domain.StorageData) error {
		c := data.Collection(collectionID)
		if c == nil {
			return ErrCollectionNotFound
		}
		if name != nil {
			n := strings.TrimSpace(*name)
			if n == "" {
				return ErrInvalidName
			}
			c.Name = n
		}
		if description != nil {
			c.Description = strings.TrimSpace(*description)
		}
		c.UpdatedAt = r.millis()
		updated = *c
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("Failed to update collection")
		return nil, fmt.Errorf("update collection %s: %w", collectionID, err)
	}

	log.Info("Collection updated")
	return &updated, nil
}

// AddEntry upserts entry into the target collection and returns that collection.
func (r *BadgerRepository) AddEntry(ctx context.Context, entry domain.Entry, collectionID string) (*domain.Collection, error) {
	log := r.log.WithFields(logrus.Fields{
		"entry_id":      entry.ID,
		"collection_id": collectionID,
	})
	log.Info("Attempting to add entry")

	if entry.ArchivedAt == 0 {
		entry.ArchivedAt = r.millis()
	}

	var target domain.Collection
	var replaced bool
	err := r.mutate(ctx, func(data *domain.StorageData) error {
		id := collectionID
		if id == "" {
			if len(data.Collections) == 0 {
				data.AddCollection(r.newCollection(domain.DefaultCollectionName, ""))
			}
			id = data.TargetCollectionID()
		}
		c := data.Collection(id)
		if c == nil {
			return ErrCollectionNotFound
		}
		replaced = c.UpsertEntry(entry)
		c.UpdatedAt = r.millis()
		target = *c
		return nil
	})
	if err != nil {
		log.WithError(err).Error("Failed to add entry")
		return nil, fmt.Errorf("add entry %s: %w", entry.ID, err)
	}

	log.WithFields(logrus.Fields{
		"target_collection_id": target.ID,
		"replaced":             replaced,
	}).Info("Entry added successfully")
	return &target, nil
}

// DeleteEntry removes an entry from a collection. Missing entries are not an error.
func (r *BadgerRepository) DeleteEntry(ctx context.Context, collectionID, entryID string) error {
	log := r.log.WithFields(logrus.Fields{
		"entry_id":      entryID,
		"collection_id": collectionID,
	})

	err := r.mutate(ctx, func(data *domain.StorageData) error {
		c := data.Collection(collectionID)
		if c == nil {
			return ErrCollectionNotFound
		}
		c.RemoveEntry(entryID)
		c.UpdatedAt = r.millis()
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("Failed to delete entry")
		return fmt.Errorf("delete entry %s from %s: %w", entryID, collectionID, err)
	}

	log.Info("Entry deleted successfully")
	return nil
}

// DeleteCollection removes a collection, moving the default elsewhere if needed.
func (r *BadgerRepository) DeleteCollection(ctx context.Context, collectionID string) error {
	log := r.log.WithField("collection_id", collectionID)

	err := r.mutate(ctx, func(data *domain.StorageData) error {
		data.RemoveCollection(collectionID)
		return nil
	})
	if err != nil {
		log.WithError(err).Error("Failed to delete collection")
		return fmt.Errorf("delete collection %s: %w", collectionID, err)
	}

	log.Info("Collection deleted successfully")
	return nil
}

// GetSettings returns the stored settings.
func (r *BadgerRepository) GetSettings(ctx context.Context) (domain.Settings, error) {
	data, err := r.GetData(ctx)
	if err != nil {
		return domain.Settings{}, err
	}
	return data.Settings, nil
}

// UpdateSettings merges patch into the stored settings. A default collection
// must name an existing collection; an empty string clears it.
func (r *BadgerRepository) UpdateSettings(ctx context.Context, patch domain.SettingsPatch) (domain.Settings, error) {
	var out domain.Settings
	err := r.mutate(ctx, func(data *domain.StorageData) error {
		if id := patch.DefaultCollectionID; id != nil && *id != "" && data.Collection(*id) == nil {
			return ErrCollectionNotFound
		}
		data.ApplySettings(patch)
		out = data.Settings
		return nil
	})
	if err != nil {
		r.log.WithError(err).Warn("Failed to update settings")
		return domain.Settings{}, fmt.Errorf("update settings: %w", err)
	}

	r.log.WithField("default_collection_id", out.DefaultCollectionID).Info("Settings updated")
	return out, nil
}

// EnsureDefaultCollection creates the initial collection on an empty store.
func (r *BadgerRepository) EnsureDefaultCollection(ctx context.Context) (bool, error) {
	created := false
	err := r.mutate(ctx, func(data *domain.StorageData) error {
		if len(data.Collections) > 0 {
			return nil
		}
		c := r.newCollection(domain.DefaultCollectionName, domain.DefaultCollectionDescription)
		data.AddCollection(c)
		data.Settings.DefaultCollectionID = c.ID
		created = true
		return nil
	})
	if err != nil {
		r.log.WithError(err).Error("Failed to create default collection")
		return false, fmt.Errorf("ensure default collection: %w", err)
	}
	if created {
		r.log.Info("Default collection created")
	}
	return created, nil
}

// RunGC periodically reclaims value log space until ctx is cancelled.
func (r *BadgerRepository) RunGC(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			err := r.db.RunValueLogGC(0.7)
			switch {
			case err == nil:
				r.log.Info("BadgerDB GC completed successfully")
			case errors.Is(err, badger.ErrNoRewrite):
				r.log.Debug("BadgerDB GC: No rewrite needed")
			case errors.Is(err, badger.ErrDBClosed):
				return
			default:
				r.log.WithError(err).Error("BadgerDB GC failed")
			}
		case <-ctx.Done():
			r.log.Info("Stopping BadgerDB GC routine due to context cancellation")
			return
		}
	}
}

// --- BadgerDB Internal Logger ---

// badgerLogger adapts logrus.FieldLogger to Badger's logger interface.
type badgerLogger struct {
	logger logrus.FieldLogger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Errorf(f, v...)
}
func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warningf(f, v...)
}
func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Infof(f, v...)
}
func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}
