package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dfworx/chat-backend/internal/models"
	"github.com/dfworx/chat-backend/internal/tenant"
	"github.com/dfworx/chat-backend/pkg/apperror"
	"github.com/dfworx/chat-backend/pkg/queue"
)

// JobState is the lifecycle state of an async export.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

const defaultStatusTTL = 24 * time.Hour

// Job is the status record of an async export, stored under export:<id>.
type Job struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	RequestedBy    uuid.UUID `json:"requested_by"`
	Request        Request   `json:"request"`
	State          JobState  `json:"state"`
	Attempts       int       `json:"attempts"`
	Filename       string    `json:"filename,omitempty"`
	MimeType       string    `json:"mime_type,omitempty"`
	ObjectKey      string    `json:"object_key,omitempty"`
	Size           int64     `json:"size,omitempty"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Payload is the queued job body. It carries the requester's scope so the
// worker exports with the same visibility the caller had.
type Payload struct {
	JobID   uuid.UUID   `json:"job_id"`
	Scope   ScopeClaims `json:"scope"`
	Request Request     `json:"request"`
}

// ScopeClaims is the serialized tenant.Scope.
type ScopeClaims struct {
	OrganizationID uuid.UUID   `json:"organization_id"`
	UserID         uuid.UUID   `json:"user_id"`
	Role           models.Role `json:"role"`
	Email          string      `json:"email,omitempty"`
}

// Scope restores the tenant scope.
func (c ScopeClaims) Scope() tenant.Scope {
	return tenant.Scope{OrganizationID: c.OrganizationID, UserID: c.UserID, Role: c.Role, Email: c.Email}
}

// ObjectKey is where an export artifact is stored.
func ObjectKey(orgID, jobID uuid.UUID, filename string) string {
	return fmt.Sprintf("exports/%s/%s/%s", orgID, jobID, filename)
}

func statusKey(id uuid.UUID) string {
	return "export:" + id.String()
}

// Jobs queues async exports and tracks their status in Redis.
type Jobs struct {
	rdb    *redis.Client
	queue  *queue.Queue
	source Source
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewJobs builds the async export front. ttl bounds how long status records
// are kept; zero means a day.
func NewJobs(rdb *redis.Client, q *queue.Queue, source Source, ttl time.Duration, logger *zap.Logger) *Jobs {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}
	return &Jobs{
		rdb:    rdb,
		queue:  q,
		source: source,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// Submit validates the request, records a queued job and enqueues it.
func (j *Jobs) Submit(ctx context.Context, sc tenant.Scope, req Request) (*Job, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := j.source.GetThread(ctx, sc, req.ThreadID); err != nil {
		return nil, err
	}
	now := j.now()
	job := &Job{
		ID:             uuid.New(),
		OrganizationID: sc.OrganizationID,
		RequestedBy:    sc.UserID,
		Request:        req,
		State:          JobQueued,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := j.Save(ctx, job); err != nil {
		return nil, err
	}
	payload := Payload{
		JobID:   job.ID,
		Scope:   ScopeClaims{OrganizationID: sc.OrganizationID, UserID: sc.UserID, Role: sc.Role, Email: sc.Email},
		Request: req,
	}
	if _, err := j.queue.Enqueue(ctx, queue.QueueExports, queue.JobTypeExport, job.ID.String(), payload); err != nil {
		return nil, fmt.Errorf("enqueue export: %w", err)
	}
	j.logger.Info("export queued", zap.String("job_id", job.ID.String()), zap.String("thread_id", req.ThreadID.String()))
	return job, nil
}

// Get returns a job of the caller's organization.
func (j *Jobs) Get(ctx context.Context, sc tenant.Scope, id uuid.UUID) (*Job, error) {
	job, err := j.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := tenant.Own(sc, "export", id, job.OrganizationID); err != nil {
		return nil, err
	}
	return job, nil
}

// Load reads a job status without a tenant check.
func (j *Jobs) Load(ctx context.Context, id uuid.UUID) (*Job, error) {
	raw, err := j.rdb.Get(ctx, statusKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperror.NotFound("export", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get export status: %w", err)
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("decode export status: %w", err)
	}
	return &job, nil
}

// Save writes a job status, refreshing its expiry.
func (j *Jobs) Save(ctx context.Context, job *Job) error {
	job.UpdatedAt = j.now()
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode export status: %w", err)
	}
	if err := j.rdb.Set(ctx, statusKey(job.ID), raw, j.ttl).Err(); err != nil {
		return fmt.Errorf("set export status: %w", err)
	}
	return nil
}
