package ingestion

import (
	"SwapLedger/internal/core"
	"SwapLedger/internal/event"
	"SwapLedger/internal/observability"
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Submitter applies calls submitted over HTTP synchronously and returns
// the receipt. A submission may omit id and timestamp; the submitter
// stamps them before the call is applied, so the stored payload carries
// them.
type Submitter struct {
	proc    Processor
	metrics *observability.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

func NewSubmitter(proc Processor, metrics *observability.Metrics, logger zerolog.Logger) *Submitter {
	return &Submitter{
		proc:    proc,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock replaces the clock used to stamp calls without a timestamp.
func (s *Submitter) WithClock(now func() time.Time) *Submitter {
	s.now = now
	return s
}

// Submit parses and applies one call of the named type.
func (s *Submitter) Submit(ctx context.Context, eventType string, data []byte) (*core.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	evt, err := ParseCall(eventType, data)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IngestParseErrors.WithLabelValues("http").Inc()
		}
		return nil, err
	}

	if headed, ok := evt.(interface{ Head() *event.Header }); ok {
		h := headed.Head()
		if h.ID == uuid.Nil {
			h.ID = uuid.New()
		}
		if h.Timestamp.IsZero() {
			h.Timestamp = s.now().UTC()
		}
	}
	if err := ValidateHeader(evt); err != nil {
		if s.metrics != nil {
			s.metrics.IngestParseErrors.WithLabelValues("http").Inc()
		}
		return nil, err
	}

	return apply(s.proc, received{evt: evt}, "http", s.metrics, s.logger)
}
