// Package registry persists a record of every ingested document in SQLite,
// backing the document listing endpoint.
package registry

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Document is one ingested-document row. Roles is stored as a single
// comma-joined column; the JSON form exposes it as an access_roles list.
type Document struct {
	ID         uint   `gorm:"primaryKey"`
	Source     string `gorm:"index"`
	ChunkCount int
	Roles      string
	CreatedAt  time.Time
}

// AccessRoles splits the stored role list.
func (d Document) AccessRoles() []string {
	if d.Roles == "" {
		return nil
	}
	return strings.Split(d.Roles, ",")
}

type documentJSON struct {
	ID          uint      `json:"id"`
	Source      string    `json:"source"`
	ChunkCount  int       `json:"chunk_count"`
	AccessRoles []string  `json:"access_roles,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (d Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(documentJSON{
		ID:          d.ID,
		Source:      d.Source,
		ChunkCount:  d.ChunkCount,
		AccessRoles: d.AccessRoles(),
		CreatedAt:   d.CreatedAt,
	})
}

func (d *Document) UnmarshalJSON(data []byte) error {
	var wire documentJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*d = Document{
		ID:         wire.ID,
		Source:     wire.Source,
		ChunkCount: wire.ChunkCount,
		Roles:      strings.Join(wire.AccessRoles, ","),
		CreatedAt:  wire.CreatedAt,
	}
	return nil
}

// Registry wraps the gorm handle.
type Registry struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open opens (and migrates) the registry database at path.
// Use ":memory:" for an ephemeral registry.
func Open(path string, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Document{}); err != nil {
		return nil, err
	}

	return &Registry{db: db, logger: logger.With(zap.String("component", "registry"))}, nil
}

// Record inserts one row for an ingested document. Satisfies rag.IngestRecorder.
func (r *Registry) Record(ctx context.Context, source string, chunkCount int, roles []string) error {
	doc := Document{
		Source:     source,
		ChunkCount: chunkCount,
		Roles:      strings.Join(roles, ","),
	}
	return r.db.WithContext(ctx).Create(&doc).Error
}

// List returns all registered documents, newest first.
func (r *Registry) List(ctx context.Context) ([]Document, error) {
	var docs []Document
	err := r.db.WithContext(ctx).Order("created_at desc, id desc").Find(&docs).Error
	return docs, err
}

// Count returns the number of registered documents.
func (r *Registry) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Document{}).Count(&n).Error
	return n, err
}
