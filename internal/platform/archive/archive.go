package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"paydesk/internal/domain/payslip"
	"paydesk/internal/platform/crypto"
	"paydesk/internal/platform/jobs"
)

const sealedSuffix = ".enc"

// Archive keeps a copy of every generated payslip under Dir, grouped by day.
type Archive struct {
	Dir    string
	Sealer *crypto.Sealer
	Logger *zap.Logger
	// Queue, when set, runs SaveAsync writes on its bounded workers.
	Queue *jobs.Queue
}

func New(dir string, sealer *crypto.Sealer, logger *zap.Logger) *Archive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archive{Dir: dir, Sealer: sealer, Logger: logger}
}

func (a *Archive) Save(_ context.Context, doc payslip.Document) (string, error) {
	at := doc.GeneratedAt
	if at.IsZero() {
		at = time.Now()
	}
	dir := filepath.Join(a.Dir, at.Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("archive payslip: %w", err)
	}

	data := doc.Data
	name := uuid.NewString() + "-" + doc.Name
	if a.Sealer.Configured() {
		sealed, err := a.Sealer.Seal(data)
		if err != nil {
			return "", fmt.Errorf("archive payslip: %w", err)
		}
		data = sealed
		name += sealedSuffix
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("archive payslip: %w", err)
	}
	return path, nil
}

// SaveAsync archives doc in the background; failures are only logged.
// The returned channel closes once the write has finished or been dropped.
func (a *Archive) SaveAsync(doc payslip.Document) <-chan struct{} {
	done := make(chan struct{})
	save := func(ctx context.Context) error {
		defer close(done)
		path, err := a.Save(ctx, doc)
		if err != nil {
			a.Logger.Warn("payslip archive failed", zap.String("document", doc.Name), zap.Error(err))
			return err
		}
		a.Logger.Debug("payslip archived", zap.String("path", path))
		return nil
	}
	if a.Queue == nil {
		go func() { _ = save(context.Background()) }()
		return done
	}
	if !a.Queue.Enqueue(jobs.JobArchivePayslip, save) {
		a.Logger.Warn("payslip archive dropped", zap.String("document", doc.Name))
		close(done)
	}
	return done
}

// Open reads an archived payslip back, decrypting it when it was sealed.
func (a *Archive) Open(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if filepath.Ext(path) == sealedSuffix {
		return a.Sealer.Open(data)
	}
	return data, nil
}
