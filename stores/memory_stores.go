package stores

import (
	"context"
	"sync"

	rules "github.com/temitayocharles/healthcare-naija"
)

// MemoryDocumentStore keeps document snapshots in a map. It backs tests and
// the CLI simulator; production deployments use the SQL or Redis stores.
type MemoryDocumentStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]any
}

func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{docs: make(map[string]map[string]any)}
}

// SetDocument writes or replaces the document at path. Fields are copied so
// later mutation by the caller cannot leak into stored state.
func (m *MemoryDocumentStore) SetDocument(path string, fields map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[path] = cloneFields(fields)
}

func (m *MemoryDocumentStore) DeleteDocument(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, path)
}

func (m *MemoryDocumentStore) GetDocument(ctx context.Context, path string) (*rules.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	fields, ok := m.docs[path]
	if !ok {
		return &rules.Snapshot{Path: path, Exists: false}, nil
	}
	return &rules.Snapshot{Path: path, Exists: true, Fields: cloneFields(fields)}, nil
}

// MemoryAuditSink accumulates audit entries in memory.
type MemoryAuditSink struct {
	mu      sync.RWMutex
	entries []*rules.AuditEntry
}

func NewMemoryAuditSink() *MemoryAuditSink {
	return &MemoryAuditSink{entries: make([]*rules.AuditEntry, 0)}
}

func (m *MemoryAuditSink) Record(ctx context.Context, entry *rules.AuditEntry) error {
	if entry == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MemoryAuditSink) Query(ctx context.Context, filter rules.AuditFilter) ([]*rules.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*rules.AuditEntry, 0)
	for _, e := range m.entries {
		if !auditEntryMatches(e, filter) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Len reports the number of recorded entries.
func (m *MemoryAuditSink) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func auditEntryMatches(e *rules.AuditEntry, f rules.AuditFilter) bool {
	if f.PrincipalID != "" && e.Principal.ID != f.PrincipalID {
		return false
	}
	if f.Path != "" && e.Path != f.Path {
		return false
	}
	if f.Operation != "" && e.Operation != f.Operation {
		return false
	}
	if !f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && e.Timestamp.After(f.EndTime) {
		return false
	}
	return true
}
