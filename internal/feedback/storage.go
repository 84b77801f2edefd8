package feedback

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// SQLStore writes feedback records into the portal database.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Save inserts one feedback record.
func (s *SQLStore) Save(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (tool, email, text, photos, user_id, username, full_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.Tool, rec.Email, rec.Text, pq.Array(rec.Photos),
		rec.UserID, rec.Username, rec.FullName, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("feedback save: %w", err)
	}
	return nil
}

// DiskStorage keeps uploaded photos under a local media directory.
type DiskStorage struct {
	dir string
}

// NewDiskStorage creates the directory if needed.
func NewDiskStorage(dir string) (*DiskStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("media dir: %w", err)
	}
	return &DiskStorage{dir: dir}, nil
}

// SaveFile writes data under a collision-free name derived from suggestedName
// and returns the stored filename.
func (d *DiskStorage) SaveFile(data []byte, suggestedName string) (string, error) {
	ext := filepath.Ext(suggestedName)
	if ext == "" {
		ext = ".jpg"
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("media name: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(suggestedName), ext)
	if base == "" || base == "." {
		base = "photo"
	}
	name := fmt.Sprintf("%s_%s%s", base, hex.EncodeToString(buf[:]), ext)

	path := filepath.Join(d.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("media write: %w", err)
	}
	return name, nil
}

// Path resolves a stored filename back to its absolute location.
func (d *DiskStorage) Path(name string) string {
	return filepath.Join(d.dir, filepath.Base(name))
}
