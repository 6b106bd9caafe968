package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Default row limits for the read operations.
const (
	DefaultLatestLimit  = 30
	DefaultContextLimit = 20
)

// schema defines the memories table and its two lookup indexes.
// Every statement is idempotent, so opening the same file repeatedly
// (or from several processes) is safe.
const schema = `
CREATE TABLE IF NOT EXISTS memories (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_id INTEGER NOT NULL,
    kind TEXT NOT NULL,
    content TEXT NOT NULL,
    tags TEXT DEFAULT '',
    importance INTEGER DEFAULT 3,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memories_owner_kind ON memories(owner_id, kind);
CREATE INDEX IF NOT EXISTS idx_memories_owner_created ON memories(owner_id, created_at);
`

// MemoryStore is the SQLite-backed memory table, scoped to a single owner.
// Concurrent writers (same file, any owner) are serialized by SQLite itself;
// the busy_timeout pragma makes them wait instead of fail.
type MemoryStore struct {
	db      *sql.DB
	ownerID int64
}

// Open opens (or creates) the database at path, ensures the schema exists,
// and binds the store to ownerID. Parent directories are created on demand.
func Open(path string, ownerID int64) (*MemoryStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &MemoryStore{db: db, ownerID: ownerID}, nil
}

// Close closes the database connection.
func (s *MemoryStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// OwnerID returns the owner this store is bound to.
func (s *MemoryStore) OwnerID() int64 {
	return s.ownerID
}

// Add inserts one memory and returns its new id. Content and tags are
// trimmed of surrounding whitespace before storage; created_at is stamped
// with the current time at second resolution. Empty kind or content is not
// rejected here, that is the caller's call.
func (s *MemoryStore) Add(kind, content, tags string, importance int) (int64, error) {
	return s.insert(kind, strings.TrimSpace(content), strings.TrimSpace(tags), importance, time.Now().Unix())
}

func (s *MemoryStore) insert(kind, content, tags string, importance int, createdAt int64) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO memories (owner_id, kind, content, tags, importance, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.ownerID, kind, content, tags, importance, createdAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert memory: %w", err)
	}
	return res.LastInsertId()
}

// Latest returns up to limit rows for the owner, most recent first.
// Rows sharing a created_at second come back newest-id first.
// A limit <= 0 falls back to DefaultLatestLimit.
func (s *MemoryStore) Latest(limit int) ([]Memory, error) {
	if limit <= 0 {
		limit = DefaultLatestLimit
	}

	rows, err := s.db.Query(`
		SELECT id, owner_id, kind, content, tags, importance, created_at
		FROM memories WHERE owner_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?
	`, s.ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memories []Memory
	for rows.Next() {
		var m Memory
		if err := rows.Scan(&m.ID, &m.OwnerID, &m.Kind, &m.Content, &m.Tags, &m.Importance, &m.CreatedAt); err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

// FormatContext renders the latest rows as one line per memory:
//
//	- [<kind>][imp:<importance>] <content>
//
// joined by newlines in Latest order. An owner with no rows yields the
// empty string, which callers must read as "no context", not an error.
func (s *MemoryStore) FormatContext(limit int) (string, error) {
	if limit <= 0 {
		limit = DefaultContextLimit
	}

	memories, err := s.Latest(limit)
	if err != nil {
		return "", err
	}
	if len(memories) == 0 {
		return "", nil
	}

	var b strings.Builder
	for i, m := range memories {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- [%s][imp:%d] %s", m.Kind, m.Importance, m.Content)
	}
	return b.String(), nil
}

// HasProfile reports whether the owner has at least one "profile" row.
// Cheap existence probe, used before expensive profile generation elsewhere.
func (s *MemoryStore) HasProfile() (bool, error) {
	var one int
	err := s.db.QueryRow(`
		SELECT 1 FROM memories WHERE owner_id = ? AND kind = ? LIMIT 1
	`, s.ownerID, KindProfile).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Count returns the owner's total row count.
func (s *MemoryStore) Count() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM memories WHERE owner_id = ?`, s.ownerID).Scan(&count)
	return count, err
}

// Kinds returns the distinct kind labels present for the owner, sorted.
func (s *MemoryStore) Kinds() ([]string, error) {
	rows, err := s.db.Query(`
		SELECT DISTINCT kind FROM memories WHERE owner_id = ? ORDER BY kind
	`, s.ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var kinds []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, rows.Err()
}

// DedupeProfiles collapses the owner's "profile" rows that share the same
// content. Rows are visited by importance descending, then created_at
// descending, then id descending; the first row seen for each content value
// survives and every later one is deleted in a single batch. Tags and
// importance are not part of the key. Returns the number of distinct
// contents kept and the number of rows deleted.
func (s *MemoryStore) DedupeProfiles() (kept, deleted int, err error) {
	rows, err := s.db.Query(`
		SELECT id, content FROM memories
		WHERE owner_id = ? AND kind = ?
		ORDER BY importance DESC, created_at DESC, id DESC
	`, s.ownerID, KindProfile)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var drop []int64
	for rows.Next() {
		var id int64
		var content string
		if err := rows.Scan(&id, &content); err != nil {
			return 0, 0, err
		}
		if seen[content] {
			drop = append(drop, id)
			continue
		}
		seen[content] = true
	}
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}

	if err := s.deleteByID(drop); err != nil {
		return 0, 0, fmt.Errorf("failed to delete duplicate profiles: %w", err)
	}
	return len(seen), len(drop), nil
}

// deleteByID removes the given rows in one statement. No-op for empty input.
func (s *MemoryStore) deleteByID(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.Exec(`DELETE FROM memories WHERE id IN (`+placeholders+`)`, args...)
	return err
}

// DeleteProfiles removes every "profile" row for the owner and returns how
// many were deleted.
func (s *MemoryStore) DeleteProfiles() (int64, error) {
	res, err := s.db.Exec(`
		DELETE FROM memories WHERE owner_id = ? AND kind = ?
	`, s.ownerID, KindProfile)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteDuplicates collapses each distinct (kind, content, tags) group for
// the owner down to its highest-id row, the most recently inserted one.
// An empty kind covers every kind; a non-empty kind restricts both grouping
// and deletion to that kind, leaving other kinds untouched. Returns the
// total rows deleted.
//
// Note the deliberate asymmetry with DedupeProfiles: full triple key and
// max-id winner here, content-only key with importance/recency winner there.
func (s *MemoryStore) DeleteDuplicates(kind string) (int64, error) {
	var res sql.Result
	var err error

	if kind != "" {
		res, err = s.db.Exec(`
			DELETE FROM memories
			WHERE owner_id = ? AND kind = ?
			  AND id NOT IN (
				SELECT MAX(id) FROM memories
				WHERE owner_id = ? AND kind = ?
				GROUP BY kind, content, tags
			  )
		`, s.ownerID, kind, s.ownerID, kind)
	} else {
		res, err = s.db.Exec(`
			DELETE FROM memories
			WHERE owner_id = ?
			  AND id NOT IN (
				SELECT MAX(id) FROM memories
				WHERE owner_id = ?
				GROUP BY kind, content, tags
			  )
		`, s.ownerID, s.ownerID)
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExact removes every row matching the exact kind and content as
// given (no trimming). Unlike the dedup operations it is an unconditional
// purge: all matches go, including the last one. Returns rows deleted.
func (s *MemoryStore) DeleteExact(kind, content string) (int64, error) {
	res, err := s.db.Exec(`
		DELETE FROM memories WHERE owner_id = ? AND kind = ? AND content = ?
	`, s.ownerID, kind, content)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Export serializes all of the owner's rows to JSON, oldest id first.
func (s *MemoryStore) Export() ([]byte, error) {
	rows, err := s.db.Query(`
		SELECT id, owner_id, kind, content, tags, importance, created_at
		FROM memories WHERE owner_id = ? ORDER BY id
	`, s.ownerID)
	if err != nil {
		return nil, fmt.Errorf("export memories: %w", err)
	}
	defer rows.Close()

	memories := []Memory{}
	for rows.Next() {
		var m Memory
		if err := rows.Scan(&m.ID, &m.OwnerID, &m.Kind, &m.Content, &m.Tags, &m.Importance, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return json.Marshal(memories)
}

// Import inserts rows from an Export dump into this store. Rows are
// re-assigned fresh ids under this store's owner; kind, content, tags,
// importance, and created_at are preserved as exported. Returns the number
// of rows imported.
func (s *MemoryStore) Import(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}

	var memories []Memory
	if err := json.Unmarshal(data, &memories); err != nil {
		return 0, fmt.Errorf("import unmarshal: %w", err)
	}

	for i, m := range memories {
		if _, err := s.insert(m.Kind, m.Content, m.Tags, m.Importance, m.CreatedAt); err != nil {
			return i, fmt.Errorf("import memory %d: %w", m.ID, err)
		}
	}
	return len(memories), nil
}

// Compile-time interface check
var _ Storer = (*MemoryStore)(nil)
