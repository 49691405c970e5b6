package stores

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oarkflow/squealx"

	rules "github.com/temitayocharles/healthcare-naija"
)

// SQLDocumentStore persists document snapshots in SQL (squealx). Each row is
// the full field map encoded as JSON, keyed by the document path.
type SQLDocumentStore struct {
	db *squealx.DB
}

func NewSQLDocumentStore(db *squealx.DB) *SQLDocumentStore {
	return &SQLDocumentStore{db: db}
}

func (s *SQLDocumentStore) SetDocument(ctx context.Context, path string, fields map[string]any) error {
	fieldsB, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	q := `INSERT INTO documents(path, fields_json, updated_at) VALUES(:path, :fields_json, :updated_at)
		ON CONFLICT(path) DO UPDATE SET fields_json = :fields_json, updated_at = :updated_at`
	_, err = s.db.NamedExecContext(ctx, q, map[string]any{
		"path":        path,
		"fields_json": string(fieldsB),
		"updated_at":  time.Now(),
	})
	return err
}

func (s *SQLDocumentStore) DeleteDocument(ctx context.Context, path string) error {
	q := `DELETE FROM documents WHERE path = :path`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"path": path})
	return err
}

func (s *SQLDocumentStore) GetDocument(ctx context.Context, path string) (*rules.Snapshot, error) {
	q := `SELECT fields_json FROM documents WHERE path = :path`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"path": path})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return &rules.Snapshot{Path: path, Exists: false}, nil
	}
	var fieldsJSON string
	if err := r.Scan(&fieldsJSON); err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
		return nil, err
	}
	return &rules.Snapshot{Path: path, Exists: true, Fields: fields}, nil
}
