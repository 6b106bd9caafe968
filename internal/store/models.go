// Package store provides the owner-scoped SQLite memory table for memkitt.
// Each store instance is bound to one owner for its whole lifetime; every
// query and every delete is filtered by that owner.
package store

// Memory is one stored entry: a short textual fact, note, or preference.
// Rows are insert-only; the only mutations are the explicit delete operations.
type Memory struct {
	ID         int64  `json:"id"`
	OwnerID    int64  `json:"ownerId"`
	Kind       string `json:"kind"`
	Content    string `json:"content"`
	Tags       string `json:"tags"`
	Importance int    `json:"importance"`
	CreatedAt  int64  `json:"createdAt"` // seconds since epoch
}

// KindProfile is the kind label used by the profile existence probe and the
// profile cleanup operations.
const KindProfile = "profile"

// Storer defines the interface for memory persistence.
// MemoryStore is the sole implementation.
type Storer interface {
	// Writes
	Add(kind, content, tags string, importance int) (int64, error)

	// Reads
	Latest(limit int) ([]Memory, error)
	FormatContext(limit int) (string, error)
	HasProfile() (bool, error)
	Count() (int, error)
	Kinds() ([]string, error)

	// Cleanup
	DedupeProfiles() (kept, deleted int, err error)
	DeleteProfiles() (int64, error)
	DeleteDuplicates(kind string) (int64, error)
	DeleteExact(kind, content string) (int64, error)

	// Export/Import (JSON serialization of one owner's rows)
	Export() ([]byte, error)
	Import(data []byte) (int, error)

	// Lifecycle
	Close() error
}
