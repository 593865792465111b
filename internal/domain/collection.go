package domain

// Collection is a user-named, ordered group of entries.
// Entries keep insertion order and are unique by ID.
type Collection struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	CreatedAt   int64   `json:"createdAt"`
	UpdatedAt   int64   `json:"updatedAt"`
	Entries     []Entry `json:"entries"`
}

// UpsertEntry replaces the entry with the same ID in place, or appends it.
// It reports whether an existing entry was replaced.
func (c *Collection) UpsertEntry(e Entry) bool {
	for i := range c.Entries {
		if c.Entries[i].ID == e.ID {
			c.Entries[i] = e
			return true
		}
	}
	c.Entries = append(c.Entries, e)
	return false
}

// RemoveEntry drops the entry with the given ID and reports whether it existed.
func (c *Collection) RemoveEntry(entryID string) bool {
	kept := c.Entries[:0]
	removed := false
	for _, e := range c.Entries {
		if e.ID == entryID {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	c.Entries = kept
	return removed
}

// Entry returns the entry with the given ID, if present.
func (c *Collection) Entry(entryID string) (Entry, bool) {
	for _, e := range c.Entries {
		if e.ID == entryID {
			return e, true
		}
	}
	return Entry{}, false
}
