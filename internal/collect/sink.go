package collect

import (
	"context"
	"log/slog"
)

// Sink receives fully enriched events. Delivery failures are the sink's to
// report; the ingest path treats them as internal errors.
type Sink interface {
	Write(ctx context.Context, evt EnrichedEvent) error
}

// LogSink emits each event as a structured log line. It is the default sink
// and the backstop when no downstream pipeline is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Write(ctx context.Context, evt EnrichedEvent) error {
	s.logger.InfoContext(ctx, "event collected",
		"client_id", evt.ClientID,
		"event_type", evt.EventType,
		"domain", evt.Domain,
		"page_url", evt.PageURL,
		"ip_hashed", evt.IPHashed,
		"country", evt.Location.Country,
		"browser", evt.UserAgent.Browser,
		"bot", evt.UserAgent.Bot,
	)
	return nil
}
