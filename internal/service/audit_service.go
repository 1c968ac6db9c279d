package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admission-api/internal/models"
	"github.com/noah-isme/sma-admission-api/pkg/jobs"
)

type auditStore interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// AuditRecorder pushes audit records onto a background queue so the request
// path never blocks on the audit table. A failed write is retried by the
// queue and, past that, only logged; the audit trail is best effort.
type AuditRecorder struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewAuditRecorder wires the repository behind a jobs queue.
func NewAuditRecorder(store auditStore, logger *zap.Logger, cfg jobs.QueueConfig) *AuditRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Logger = logger
	handler := func(ctx context.Context, job jobs.Job) error {
		log, ok := job.Payload.(*models.AuditLog)
		if !ok {
			return fmt.Errorf("unexpected audit payload %T", job.Payload)
		}
		return store.Create(ctx, log)
	}
	queue := jobs.NewQueue("audit", handler, cfg)
	return &AuditRecorder{queue: queue, logger: logger}
}

// Start launches the background workers.
func (r *AuditRecorder) Start(ctx context.Context) {
	r.queue.Start(ctx)
}

// Stop drains the workers.
func (r *AuditRecorder) Stop() {
	r.queue.Stop()
}

// Record enqueues an audit log for asynchronous persistence.
func (r *AuditRecorder) Record(log *models.AuditLog) {
	if r == nil || log == nil {
		return
	}
	err := r.queue.TryEnqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    log.Action,
		Payload: log,
	})
	if err != nil {
		r.logger.Warn("failed to enqueue audit log", zap.String("action", log.Action), zap.Error(err))
	}
}
