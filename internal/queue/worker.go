package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/commonground/newscrawler/internal/archive"
	"github.com/commonground/newscrawler/internal/crawl"
	"github.com/commonground/newscrawler/internal/store"
)

// ProgressEmitter returns an emitter that republishes every progress event
// on the progress routing key.
func ProgressEmitter(b Broker) crawl.EmitterFunc {
	return func(ctx context.Context, evt crawl.ProgressEvent) error {
		body, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("marshal progress event: %w", err)
		}
		if err := b.Publish(ctx, ProgressRoutingKey, body); err != nil {
			return fmt.Errorf("publish progress: %w", err)
		}
		return nil
	}
}

// Worker pulls crawl requests off the broker one at a time, drives the
// orchestrator, and publishes exactly one result message per request.
type Worker struct {
	broker   Broker
	orch     *crawl.Orchestrator
	sessions *store.SessionStore
	archiver archive.Archiver
	clock    crawl.Clock
	logger   *zap.Logger
}

// NewWorker constructs a Worker.
func NewWorker(
	broker Broker,
	orch *crawl.Orchestrator,
	sessions *store.SessionStore,
	archiver archive.Archiver,
	clock crawl.Clock,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if archiver == nil {
		archiver = archive.Noop{}
	}
	return &Worker{
		broker:   broker,
		orch:     orch,
		sessions: sessions,
		archiver: archiver,
		clock:    clock,
		logger:   logger,
	}
}

// Run blocks consuming requests until ctx ends. On shutdown no new request
// is accepted, but the in-flight session runs to its terminal state so no
// browser context leaks.
func (w *Worker) Run(ctx context.Context) error {
	deliveries, err := w.broker.Consume(ctx)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}
	w.logger.Info("queue worker started", zap.String("queue", RequestQueue))
	for d := range deliveries {
		w.handle(ctx, d.Body)
		if err := d.Ack(); err != nil {
			w.logger.Error("ack failed", zap.Error(err))
		}
	}
	w.logger.Info("queue worker stopped")
	return nil
}

// handle processes one raw request body. Whatever happens, exactly one
// result message goes out, keyed by the request id recovered from the raw
// payload when full decoding fails.
func (w *Worker) handle(ctx context.Context, body []byte) {
	var msg RequestMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		w.logger.Error("undecodable request payload", zap.Error(err))
		w.publishFailure(ctx, recoverRequestID(body), fmt.Sprintf("invalid request payload: %v", err))
		return
	}

	req := msg.Payload
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	if err := req.Validate(); err != nil {
		w.publishFailure(ctx, msg.RequestID, err.Error())
		return
	}

	w.logger.Info("crawl request received",
		zap.String("request_id", msg.RequestID),
		zap.String("session_id", req.SessionID),
	)

	sess := crawl.NewSession(req, w.clock)
	if err := w.sessions.Put(sess); err != nil {
		w.publishFailure(ctx, msg.RequestID, fmt.Sprintf("session %s: %v", req.SessionID, err))
		return
	}

	// The orchestrator guarantees a terminal session even on faults; an
	// expired ctx mid-crawl surfaces as a failed session, not a lost one.
	w.orch.Run(ctx, req, sess)

	if err := w.sessions.MoveToCompleted(req.SessionID); err != nil {
		w.logger.Error("move session to completed registry failed",
			zap.String("session_id", req.SessionID), zap.Error(err))
	}
	snap := sess.Snapshot()
	if err := w.archiver.Save(ctx, snap); err != nil {
		w.logger.Warn("archive session failed",
			zap.String("session_id", req.SessionID), zap.Error(err))
	}

	if snap.Status == crawl.StatusCompleted {
		w.publishResult(ctx, ResultMessage{
			RequestID: msg.RequestID,
			Success:   true,
			Data:      snap.Data,
			Timestamp: w.clock.Now().UnixMilli(),
		})
		w.logger.Info("crawl request completed",
			zap.String("request_id", msg.RequestID),
			zap.Int("articles", snap.SuccessCount),
		)
		return
	}
	w.publishFailure(ctx, msg.RequestID, strings.Join(snap.Errors, "; "))
}

func (w *Worker) publishFailure(ctx context.Context, requestID, errText string) {
	if errText == "" {
		errText = "crawl failed"
	}
	w.publishResult(ctx, ResultMessage{
		RequestID:    requestID,
		Success:      false,
		ErrorMessage: &errText,
		Timestamp:    w.clock.Now().UnixMilli(),
	})
}

func (w *Worker) publishResult(ctx context.Context, result ResultMessage) {
	body, err := json.Marshal(result)
	if err != nil {
		w.logger.Error("marshal result failed", zap.String("request_id", result.RequestID), zap.Error(err))
		return
	}
	if err := w.broker.Publish(ctx, ResultRoutingKey, body); err != nil {
		w.logger.Error("publish result failed", zap.String("request_id", result.RequestID), zap.Error(err))
	}
}
