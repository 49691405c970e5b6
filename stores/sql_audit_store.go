package stores

import (
	"context"
	"encoding/json"

	"github.com/oarkflow/squealx"

	rules "github.com/temitayocharles/healthcare-naija"
)

// SQLAuditSink persists authorization decisions in SQL for later review.
type SQLAuditSink struct {
	db *squealx.DB
}

func NewSQLAuditSink(db *squealx.DB) *SQLAuditSink {
	return &SQLAuditSink{db: db}
}

func (s *SQLAuditSink) Record(ctx context.Context, entry *rules.AuditEntry) error {
	if entry == nil {
		return nil
	}
	decisionB, _ := json.Marshal(entry.Decision)
	metaB, _ := json.Marshal(entry.Metadata)
	allowed := false
	code := ""
	reason := ""
	if entry.Decision != nil {
		allowed = entry.Decision.Allowed
		code = string(entry.Decision.Code)
		reason = entry.Decision.Reason
	}
	q := `INSERT INTO audit_log(id, trace_id, timestamp, principal_id, principal_role, operation, path, allowed, code, reason, decision_json, metadata_json) VALUES(:id, :trace_id, :timestamp, :principal_id, :principal_role, :operation, :path, :allowed, :code, :reason, :decision_json, :metadata_json)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":             entry.ID,
		"trace_id":       entry.TraceID,
		"timestamp":      entry.Timestamp,
		"principal_id":   entry.Principal.ID,
		"principal_role": string(entry.Principal.Role),
		"operation":      string(entry.Operation),
		"path":           entry.Path,
		"allowed":        boolToInt(allowed),
		"code":           code,
		"reason":         reason,
		"decision_json":  string(decisionB),
		"metadata_json":  string(metaB),
	})
	return err
}

func (s *SQLAuditSink) Query(ctx context.Context, filter rules.AuditFilter) ([]*rules.AuditEntry, error) {
	q := `SELECT id, trace_id, timestamp, principal_id, principal_role, operation, path, decision_json, metadata_json FROM audit_log WHERE 1=1`
	params := map[string]any{}
	if filter.PrincipalID != "" {
		q += " AND principal_id = :principal_id"
		params["principal_id"] = filter.PrincipalID
	}
	if filter.Path != "" {
		q += " AND path = :path"
		params["path"] = filter.Path
	}
	if filter.Operation != "" {
		q += " AND operation = :operation"
		params["operation"] = string(filter.Operation)
	}
	if !filter.StartTime.IsZero() {
		q += " AND timestamp >= :start"
		params["start"] = filter.StartTime
	}
	if !filter.EndTime.IsZero() {
		q += " AND timestamp <= :end"
		params["end"] = filter.EndTime
	}
	if filter.Limit > 0 {
		q += " LIMIT :limit"
		params["limit"] = filter.Limit
	} else {
		q += " LIMIT 100"
	}
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*rules.AuditEntry, 0)
	for r.Next() {
		var id, traceID, principalID, principalRole, operation, path, decisionJSON, metaJSON string
		var timestampRaw any
		if err := r.Scan(&id, &traceID, &timestampRaw, &principalID, &principalRole, &operation, &path, &decisionJSON, &metaJSON); err != nil {
			return nil, err
		}
		entry := &rules.AuditEntry{
			ID:        id,
			TraceID:   traceID,
			Timestamp: scanTime(timestampRaw),
			Principal: rules.Principal{Authenticated: principalID != "", ID: principalID, Role: rules.Role(principalRole)},
			Operation: rules.Operation(operation),
			Path:      path,
		}
		var d rules.Decision
		if err := json.Unmarshal([]byte(decisionJSON), &d); err == nil {
			entry.Decision = &d
		}
		_ = json.Unmarshal([]byte(metaJSON), &entry.Metadata)
		out = append(out, entry)
	}
	return out, nil
}
