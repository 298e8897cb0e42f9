package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/dfworx/chat-backend/internal/export"
	"github.com/dfworx/chat-backend/pkg/apperror"
	"github.com/dfworx/chat-backend/pkg/queue"
)

// Uploader stores rendered export artifacts.
type Uploader interface {
	PutExport(ctx context.Context, key, contentType string, body io.Reader, size int64) error
}

// ExportProcessor processes export jobs: render the thread, upload the
// artifact and record the outcome in the job status.
type ExportProcessor struct {
	exporter *export.Exporter
	jobs     *export.Jobs
	uploader Uploader
	queue    *queue.Queue
	logger   *zap.Logger

	pollTimeout time.Duration
	backoff     time.Duration
}

// NewExportProcessor creates an export job processor.
func NewExportProcessor(exporter *export.Exporter, jobs *export.Jobs, uploader Uploader, q *queue.Queue, logger *zap.Logger) *ExportProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportProcessor{
		exporter:    exporter,
		jobs:        jobs,
		uploader:    uploader,
		queue:       q,
		logger:      logger,
		pollTimeout: 5 * time.Second,
		backoff:     queue.RetryBackoff,
	}
}

// WithPollTimeout sets how long one dequeue blocks. Non-positive values are
// ignored.
func (p *ExportProcessor) WithPollTimeout(d time.Duration) *ExportProcessor {
	if d > 0 {
		p.pollTimeout = d
	}
	return p
}

// errPermanent marks failures that retrying cannot fix.
var errPermanent = errors.New("permanent export failure")

func permanent(err error) bool {
	return errors.Is(err, errPermanent) ||
		apperror.IsValidation(err) || apperror.IsNotFound(err) || apperror.IsTenantMismatch(err)
}

// Process executes one export job. Permanent failures are recorded on the
// job and reported as nil so the job is not retried.
func (p *ExportProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeExport {
		return fmt.Errorf("%w: unknown job type %s", errPermanent, job.Type)
	}
	var payload export.Payload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("%w: unmarshal payload: %v", errPermanent, err)
	}

	status, err := p.jobs.Load(ctx, payload.JobID)
	if err != nil {
		if apperror.IsNotFound(err) {
			p.logger.Warn("export status expired, dropping job", zap.String("job_id", payload.JobID.String()))
			return nil
		}
		return err
	}
	if status.State == export.JobCompleted {
		p.logger.Info("export already completed", zap.String("job_id", status.ID.String()))
		return nil
	}
	status.State = export.JobRunning
	status.Attempts = job.Attempt + 1
	if err := p.jobs.Save(ctx, status); err != nil {
		return err
	}

	res, err := p.exporter.Export(ctx, payload.Scope.Scope(), payload.Request)
	if err != nil {
		if permanent(err) {
			p.fail(ctx, status, err)
			return nil
		}
		return fmt.Errorf("render export: %w", err)
	}

	key := export.ObjectKey(status.OrganizationID, status.ID, res.Filename)
	if err := p.uploader.PutExport(ctx, key, res.MimeType, bytes.NewReader(res.Data), int64(len(res.Data))); err != nil {
		return fmt.Errorf("upload export: %w", err)
	}

	status.State = export.JobCompleted
	status.Filename = res.Filename
	status.MimeType = res.MimeType
	status.ObjectKey = key
	status.Size = int64(len(res.Data))
	status.Error = ""
	if err := p.jobs.Save(ctx, status); err != nil {
		return err
	}
	p.logger.Info("export completed", zap.String("job_id", status.ID.String()), zap.String("s3_key", key))
	return nil
}

func (p *ExportProcessor) fail(ctx context.Context, status *export.Job, cause error) {
	status.State = export.JobFailed
	status.Error = cause.Error()
	if err := p.jobs.Save(ctx, status); err != nil {
		p.logger.Error("record export failure", zap.String("job_id", status.ID.String()), zap.Error(err))
	}
	p.logger.Warn("export failed", zap.String("job_id", status.ID.String()), zap.Error(cause))
}

// handle processes one job and retries it on transient failure. Jobs that
// exhaust their retries are marked failed.
func (p *ExportProcessor) handle(ctx context.Context, job *queue.Job) {
	p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	err := p.Process(ctx, job)
	if err == nil {
		return
	}
	p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
	if permanent(err) {
		return
	}
	dead, reErr := p.queue.Retry(ctx, job, err)
	if reErr != nil {
		p.logger.Error("retry enqueue failed", zap.Error(reErr))
		return
	}
	if dead {
		var payload export.Payload
		if json.Unmarshal(job.Payload, &payload) == nil {
			if status, lerr := p.jobs.Load(ctx, payload.JobID); lerr == nil {
				p.fail(ctx, status, err)
			}
		}
	}
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

		job, err := p.queue.Dequeue(ctx, p.pollTimeout, queue.QueueExports)
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
		p.handle(ctx, job)
	}
}

func (p *ExportProcessor) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.backoff):
	}
}
