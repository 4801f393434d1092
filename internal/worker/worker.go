package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventdesk/backend/internal/finance"
	"github.com/eventdesk/backend/internal/models"
	"github.com/eventdesk/backend/pkg/queue"
	"github.com/eventdesk/backend/pkg/storage"
)

// ExportStore tracks export records. *exports.Repository implements it.
type ExportStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.ReportExport, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, key string, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, msg string, at time.Time) error
}

// Renderer writes a report as CSV. *finance.Service implements it.
type Renderer interface {
	ExportCSV(ctx context.Context, kind finance.ReportKind, w io.Writer) error
}

// Uploader puts objects in the exports bucket. *storage.S3 implements it.
type Uploader interface {
	Upload(ctx context.Context, bucket, key, contentType string, body io.Reader) (string, error)
	ExportsBucket() string
}

// JobQueue is the job source. *queue.Queue implements it.
type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) (bool, error)
}

// ExportProcessor processes report export jobs: render CSV, upload to S3, update DB.
type ExportProcessor struct {
	store    ExportStore
	renderer Renderer
	s3       Uploader
	queue    JobQueue
	logger   *zap.Logger
	backoff  time.Duration
}

// NewExportProcessor creates a report export processor.
func NewExportProcessor(store ExportStore, renderer Renderer, s3 Uploader, q JobQueue, logger *zap.Logger) *ExportProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportProcessor{store: store, renderer: renderer, s3: s3, queue: q, logger: logger, backoff: queue.RetryBackoff}
}

// Process executes one export job.
func (p *ExportProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeReportExport {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ExportPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	exp, err := p.store.Get(ctx, payload.ExportID)
	if err != nil {
		return fmt.Errorf("load export %s: %w", payload.ExportID, err)
	}
	if exp.Status == models.ExportStatusCompleted {
		p.logger.Info("export already completed", zap.String("export_id", exp.ID.String()))
		return nil
	}
	kind, err := finance.ParseReportKind(exp.Kind)
	if err != nil {
		return err
	}

	// Render fully before uploading so a failed render never leaves a partial object.
	var buf bytes.Buffer
	if err := p.renderer.ExportCSV(ctx, kind, &buf); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	key := storage.ExportKey(exp.Kind, exp.ID)
	if _, err := p.s3.Upload(ctx, p.s3.ExportsBucket(), key, "text/csv", &buf); err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}
	if err := p.store.MarkCompleted(ctx, exp.ID, key, time.Now().UTC()); err != nil {
		return fmt.Errorf("update db: %w", err)
	}

	p.logger.Info("export completed", zap.String("export_id", exp.ID.String()), zap.String("s3_key", key))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ExportProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("export worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.handleFailure(ctx, job, err)
			p.sleep(ctx)
		}
	}
}

func (p *ExportProcessor) handleFailure(ctx context.Context, job *queue.Job, procErr error) {
	p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(procErr))
	dead, err := p.queue.Retry(ctx, job)
	if err != nil {
		p.logger.Error("retry enqueue failed", zap.Error(err))
		return
	}
	if !dead {
		return
	}
	var payload queue.ExportPayload
	if json.Unmarshal(job.Payload, &payload) != nil || payload.ExportID == uuid.Nil {
		return
	}
	if err := p.store.MarkFailed(ctx, payload.ExportID, procErr.Error(), time.Now().UTC()); err != nil {
		p.logger.Error("mark export failed", zap.Error(err), zap.String("export_id", payload.ExportID.String()))
	}
}

func (p *ExportProcessor) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.backoff):
	}
}
