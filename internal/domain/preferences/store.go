package preferences

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"paydesk/internal/domain/payroll"
)

const (
	// Namespace is the storage key for the current schema. Bump the suffix together
	// with SchemaVersion when the record shape changes.
	Namespace     = "paydesk.deduction-preferences.v1"
	SchemaVersion = 1

	legacyNamespace = "paydesk.deduction-preferences"
)

type record struct {
	SchemaVersion int   `json:"schemaVersion"`
	IncludePAYE   *bool `json:"includePAYE"`
	IncludeUIF    *bool `json:"includeUIF"`
	IncludeSDL    *bool `json:"includeSDL"`
}

type Store struct {
	backend Backend
	logger  *zap.Logger
}

func NewStore(backend Backend, logger *zap.Logger) *Store {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{backend: backend, logger: logger}
}

func (s *Store) Backend() Backend {
	return s.backend
}

// Load returns the stored preferences for scope, or the all-true defaults when
// nothing usable is stored.
func (s *Store) Load(ctx context.Context, scope string) payroll.DeductionPreferences {
	raw, err := s.backend.Get(ctx, Key(scope))
	if err == nil {
		prefs, decodeErr := decode(raw)
		if decodeErr == nil {
			return prefs
		}
		s.logger.Debug("discarding stored deduction preferences", zap.String("scope", scope), zap.Error(decodeErr))
		return payroll.DefaultPreferences()
	}
	if !errors.Is(err, ErrNotFound) {
		s.logger.Warn("load deduction preferences failed", zap.String("scope", scope), zap.Error(err))
		return payroll.DefaultPreferences()
	}
	return s.migrateLegacy(ctx, scope)
}

// Save persists prefs for scope. Failures are logged and otherwise ignored.
func (s *Store) Save(ctx context.Context, scope string, prefs payroll.DeductionPreferences) {
	raw, err := encode(prefs)
	if err != nil {
		s.logger.Warn("encode deduction preferences failed", zap.String("scope", scope), zap.Error(err))
		return
	}
	if err := s.backend.Set(ctx, Key(scope), raw); err != nil {
		s.logger.Warn("save deduction preferences failed", zap.String("scope", scope), zap.Error(err))
	}
}

// migrateLegacy reads an unversioned blob written before schema tagging and
// rewrites it under the versioned key.
func (s *Store) migrateLegacy(ctx context.Context, scope string) payroll.DeductionPreferences {
	raw, err := s.backend.Get(ctx, legacyKey(scope))
	if err != nil {
		return payroll.DefaultPreferences()
	}
	var legacy record
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return payroll.DefaultPreferences()
	}
	prefs := merge(payroll.DefaultPreferences(), legacy)
	s.Save(ctx, scope, prefs)
	s.logger.Info("migrated legacy deduction preferences", zap.String("scope", scope))
	return prefs
}

func Key(scope string) string {
	if scope == "" {
		return Namespace
	}
	return Namespace + ":" + scope
}

func legacyKey(scope string) string {
	if scope == "" {
		return legacyNamespace
	}
	return legacyNamespace + ":" + scope
}

func encode(prefs payroll.DeductionPreferences) ([]byte, error) {
	return json.Marshal(record{
		SchemaVersion: SchemaVersion,
		IncludePAYE:   &prefs.IncludePAYE,
		IncludeUIF:    &prefs.IncludeUIF,
		IncludeSDL:    &prefs.IncludeSDL,
	})
}

func decode(raw []byte) (payroll.DeductionPreferences, error) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return payroll.DeductionPreferences{}, err
	}
	if rec.SchemaVersion != SchemaVersion {
		return payroll.DeductionPreferences{}, ErrSchemaVersion
	}
	if rec.IncludePAYE == nil || rec.IncludeUIF == nil || rec.IncludeSDL == nil {
		return payroll.DeductionPreferences{}, ErrIncompleteRecord
	}
	return payroll.DeductionPreferences{
		IncludePAYE: *rec.IncludePAYE,
		IncludeUIF:  *rec.IncludeUIF,
		IncludeSDL:  *rec.IncludeSDL,
	}, nil
}

func merge(base payroll.DeductionPreferences, rec record) payroll.DeductionPreferences {
	if rec.IncludePAYE != nil {
		base.IncludePAYE = *rec.IncludePAYE
	}
	if rec.IncludeUIF != nil {
		base.IncludeUIF = *rec.IncludeUIF
	}
	if rec.IncludeSDL != nil {
		base.IncludeSDL = *rec.IncludeSDL
	}
	return base
}
