package attendance

import (
	"context"

	"go.uber.org/zap"

	"qrattend/internal/metrics"
	"qrattend/internal/queue"
)

// AttemptSink stores scan audit entries; *Repository implements it.
type AttemptSink interface {
	InsertAttempt(ctx context.Context, a Attempt) error
}

// ConsumeAttempts writes every scan attempt message to sink until msgs is closed.
// Messages of other types are skipped, bad bodies are logged and dropped.
func ConsumeAttempts(ctx context.Context, msgs <-chan queue.Message, sink AttemptSink, log *zap.Logger) {
	for msg := range msgs {
		if msg.Type != AttemptMessageType {
			continue
		}
		a, err := DecodeAttempt(msg.Body)
		if err != nil {
			metrics.AuditWritten.WithLabelValues("malformed").Inc()
			log.Warn("dropping scan attempt", zap.Error(err))
			continue
		}
		if err := sink.InsertAttempt(ctx, a); err != nil {
			metrics.AuditWritten.WithLabelValues("failed").Inc()
			log.Error("store scan attempt", zap.String("attempt_id", a.ID), zap.Error(err))
			continue
		}
		metrics.AuditWritten.WithLabelValues("stored").Inc()
		log.Debug("scan attempt stored", zap.String("attempt_id", a.ID), zap.String("outcome", string(a.Outcome)))
	}
}
