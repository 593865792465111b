package domain

// DefaultCollectionName is used for the collection created on first start
// and when an entry is added before any collection exists.
const (
	DefaultCollectionName        = "Varsayılan Koleksiyon"
	DefaultCollectionDescription = "İlk koleksiyonunuz"
)

// Settings holds user preferences. An empty DefaultCollectionID means unset.
type Settings struct {
	DefaultCollectionID string `json:"defaultCollectionId,omitempty"`
}

// SettingsPatch is a partial settings update; nil fields are left untouched.
type SettingsPatch struct {
	DefaultCollectionID *string `json:"defaultCollectionId,omitempty"`
}

// StorageData is the whole persisted document. It is always read and
// written as a single blob.
type StorageData struct {
	Collections []Collection `json:"collections"`
	Settings    Settings     `json:"settings"`
}

// NewStorageData returns the document used when nothing has been stored yet.
func NewStorageData() *StorageData {
	return &StorageData{Collections: []Collection{}}
}

// Collection returns a pointer into Collections for the given ID, or nil.
func (d *StorageData) Collection(id string) *Collection {
	for i := range d.Collections {
		if d.Collections[i].ID == id {
			return &d.Collections[i]
		}
	}
	return nil
}

// AddCollection appends c. The first collection ever added becomes the default.
func (d *StorageData) AddCollection(c Collection) {
	if c.Entries == nil {
		c.Entries = []Entry{}
	}
	d.Collections = append(d.Collections, c)
	if len(d.Collections) == 1 {
		d.Settings.DefaultCollectionID = c.ID
	}
}

// RemoveCollection drops the collection with the given ID. When it was the
// default, the first remaining collection takes over, or the default is
// cleared if none remain.
func (d *StorageData) RemoveCollection(id string) bool {
	kept := d.Collections[:0]
	removed := false
	for _, c := range d.Collections {
		if c.ID == id {
			removed = true
			continue
		}
		kept = append(kept, c)
	}
	d.Collections = kept

	if d.Settings.DefaultCollectionID == id {
		d.Settings.DefaultCollectionID = ""
		if len(d.Collections) > 0 {
			d.Settings.DefaultCollectionID = d.Collections[0].ID
		}
	}
	return removed
}

// TargetCollectionID resolves where an entry goes when no collection was
// named: the default collection if set, otherwise the first one.
// It returns "" when there are no collections.
func (d *StorageData) TargetCollectionID() string {
	if d.Settings.DefaultCollectionID != "" {
		return d.Settings.DefaultCollectionID
	}
	if len(d.Collections) > 0 {
		return d.Collections[0].ID
	}
	return ""
}

// ApplySettings merges a partial update into the current settings.
func (d *StorageData) ApplySettings(p SettingsPatch) {
	if p.DefaultCollectionID != nil {
		d.Settings.DefaultCollectionID = *p.DefaultCollectionID
	}
}
