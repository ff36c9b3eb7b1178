package ingestion

import (
	"SwapLedger/internal/core"
	"SwapLedger/internal/event"
	"SwapLedger/internal/observability"
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Processor applies calls; *core.Engine satisfies it.
type Processor interface {
	ProcessEvent(evt event.Event) (*core.Receipt, error)
}

type received struct {
	evt event.Event
	at  time.Time
}

// RunIngestionLoop parses raw NATS calls and applies them in arrival order.
// A message is ACKed once it is parsed and handed to the apply loop, not
// after the core applies it, so slow applies never expire AckWait.
// Malformed messages are terminated. Blocks until ctx is cancelled or
// rawChan closes.
func RunIngestionLoop(ctx context.Context, rawChan <-chan RawEvent, proc Processor, metrics *observability.Metrics, logger zerolog.Logger) {
	typed := make(chan received, 4096)

	go func() {
		defer close(typed)
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-rawChan:
				if !ok {
					return
				}

				evt, err := ParseRawEvent(raw)
				if err == nil {
					err = ValidateHeader(evt)
				}
				if err != nil {
					logger.Warn().Err(err).Str("subject", raw.Subject).Msg("dropping malformed call")
					if metrics != nil {
						metrics.IngestParseErrors.WithLabelValues("nats").Inc()
					}
					if raw.TermFunc != nil {
						raw.TermFunc()
					}
					continue
				}

				select {
				case typed <- received{evt: evt, at: raw.Timestamp}:
					raw.AckFunc()
				case <-ctx.Done():
					raw.NakFunc()
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-typed:
			if !ok {
				return
			}
			apply(proc, r, "nats", metrics, logger)
		}
	}
}

func apply(proc Processor, r received, source string, metrics *observability.Metrics, logger zerolog.Logger) (*core.Receipt, error) {
	eventType := r.evt.EventType().String()
	if metrics != nil {
		metrics.IngestSubmitted.WithLabelValues(source, eventType).Inc()
	}

	receipt, err := proc.ProcessEvent(r.evt)
	if metrics != nil && !r.at.IsZero() {
		metrics.IngestToApply.WithLabelValues(source).Observe(time.Since(r.at).Seconds())
	}

	switch {
	case err == nil:
	case errors.Is(err, core.ErrDuplicate):
		logger.Debug().Str("event_type", eventType).Str("idempotency_key", r.evt.IdempotencyKey()).Msg("duplicate call skipped")
	default:
		logger.Warn().
			Err(err).
			Str("source", source).
			Str("event_type", eventType).
			Str("idempotency_key", r.evt.IdempotencyKey()).
			Msg("call rejected")
	}
	return receipt, err
}
