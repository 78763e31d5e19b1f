package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	ActionPayslipGenerated   = "payslip.generated"
	ActionPreferencesUpdated = "preferences.updated"
	ActionRegisterExported   = "register.exported"
)

type Event struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenantId"`
	ActorID    string          `json:"actorId"`
	Action     string          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	RequestID  string          `json:"requestId"`
	IP         string          `json:"ip"`
	CreatedAt  time.Time       `json:"createdAt"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
}

type Filter struct {
	Action     string
	EntityType string
	ActorUser  string
}

// Recorder persists audit events. Recording is best effort: callers log a
// failed Record and carry on.
type Recorder interface {
	Record(ctx context.Context, evt Event, before, after any) error
}

// LogRecorder writes events to the structured log only.
type LogRecorder struct {
	Logger *zap.Logger
}

func NewLogRecorder(logger *zap.Logger) *LogRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogRecorder{Logger: logger}
}

func (l *LogRecorder) Record(_ context.Context, evt Event, before, after any) error {
	l.Logger.Info("audit",
		zap.String("tenantId", evt.TenantID),
		zap.String("actorId", evt.ActorID),
		zap.String("action", evt.Action),
		zap.String("entityType", evt.EntityType),
		zap.String("entityId", evt.EntityID),
		zap.String("requestId", evt.RequestID),
		zap.Any("before", before),
		zap.Any("after", after),
	)
	return nil
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS audit_events (
  id BIGSERIAL PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  actor_user_id TEXT NOT NULL,
  action TEXT NOT NULL,
  entity_type TEXT NOT NULL,
  entity_id TEXT NOT NULL,
  before_json JSONB,
  after_json JSONB,
  request_id TEXT,
  ip TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type Service struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Service {
	return &Service{DB: db}
}

func (s *Service) EnsureSchema(ctx context.Context) error {
	_, err := s.DB.Exec(ctx, createTableSQL)
	return err
}

func (s *Service) Record(ctx context.Context, evt Event, before, after any) error {
	beforeJSON, err := marshalOptional(before)
	if err != nil {
		return err
	}
	afterJSON, err := marshalOptional(after)
	if err != nil {
		return err
	}

	_, err = s.DB.Exec(ctx, `
    INSERT INTO audit_events (tenant_id, actor_user_id, action, entity_type, entity_id, before_json, after_json, request_id, ip)
    VALUES ($1,$2,$3,$4,$5,$6::jsonb,$7::jsonb,$8,$9)
  `, evt.TenantID, evt.ActorID, evt.Action, evt.EntityType, evt.EntityID, beforeJSON, afterJSON, evt.RequestID, evt.IP)
	return err
}

func (s *Service) List(ctx context.Context, tenantID string, filter Filter, limit, offset int) ([]Event, error) {
	query, args := buildBaseQuery("SELECT id::text, tenant_id, actor_user_id, action, entity_type, entity_id, COALESCE(request_id, ''), COALESCE(ip, ''), created_at, COALESCE(before_json::text, ''), COALESCE(after_json::text, '')", tenantID, filter)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var evt Event
		var before, after string
		if err := rows.Scan(&evt.ID, &evt.TenantID, &evt.ActorID, &evt.Action, &evt.EntityType, &evt.EntityID, &evt.RequestID, &evt.IP, &evt.CreatedAt, &before, &after); err != nil {
			return nil, err
		}
		if before != "" {
			evt.Before = json.RawMessage(before)
		}
		if after != "" {
			evt.After = json.RawMessage(after)
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

func marshalOptional(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(payload)
	return &s, nil
}

func buildBaseQuery(prefix, tenantID string, filter Filter) (string, []any) {
	query := prefix + " FROM audit_events WHERE tenant_id = $1"
	args := []any{tenantID}
	if filter.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", len(args)+1)
		args = append(args, filter.Action)
	}
	if filter.EntityType != "" {
		query += fmt.Sprintf(" AND entity_type = $%d", len(args)+1)
		args = append(args, filter.EntityType)
	}
	if filter.ActorUser != "" {
		query += fmt.Sprintf(" AND actor_user_id = $%d", len(args)+1)
		args = append(args, filter.ActorUser)
	}
	return query, args
}
