package main

import (
	"SwapLedger/internal/core"
	"SwapLedger/internal/event"
	"SwapLedger/internal/ingestion"
	"SwapLedger/internal/observability"
	"SwapLedger/internal/persistence"
	"SwapLedger/internal/projection"
	"context"
	"database/sql"
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// bridgeCoreOutputs converts core outputs into the persistence, projection
// and publish formats. This keeps persistence and projection free of core
// imports. persistOut is a blocking send; projection and publish drop when
// their channels are full. Once both inputs are closed and drained the
// outputs are closed, which lets the workers flush and exit.
func bridgeCoreOutputs(
	ctx context.Context,
	persistIn <-chan core.CoreOutput,
	projectionIn <-chan core.CoreOutput,
	persistOut chan<- persistence.Output,
	projectionOut chan<- projection.ProjectionOutput,
	publishOut chan<- ingestion.PublishableEvent,
	metrics *observability.Metrics,
) {
	defer func() {
		close(persistOut)
		close(projectionOut)
		if publishOut != nil {
			close(publishOut)
		}
	}()

	for persistIn != nil || projectionIn != nil {
		select {
		case <-ctx.Done():
			return

		case output, ok := <-persistIn:
			if !ok {
				persistIn = nil
				continue
			}
			select {
			case persistOut <- toPersistence(output):
			case <-ctx.Done():
				return
			}

			if publishOut == nil {
				continue
			}
			select {
			case publishOut <- toPublishable(output):
			default:
				if metrics != nil {
					metrics.PublishDrops.Inc()
				}
			}

		case output, ok := <-projectionIn:
			if !ok {
				projectionIn = nil
				continue
			}
			select {
			case projectionOut <- toProjection(output):
			default:
				if metrics != nil {
					metrics.ProjectionDrops.WithLabelValues("bridge").Inc()
				}
			}
		}
	}
}

func toPersistence(output core.CoreOutput) persistence.Output {
	env := output.Envelope
	out := persistence.Output{
		Event: persistence.EventRow{
			Sequence:       env.Sequence,
			EventType:      env.EventType.String(),
			IdempotencyKey: env.IdempotencyKey,
			Sender:         lowerHex(env.Sender),
			Payload:        env.Payload,
			StateHash:      env.StateHash[:],
			PrevHash:       env.PrevHash[:],
			Timestamp:      env.Timestamp,
		},
	}

	if output.Batch != nil {
		for _, j := range output.Batch.Journals {
			out.Journals = append(out.Journals, persistence.JournalRow{
				JournalID:   j.JournalID.String(),
				BatchID:     j.BatchID.String(),
				EventRef:    j.EventRef,
				Sequence:    j.Sequence,
				Asset:       lowerHex(j.Asset),
				FromAccount: j.CreditAccount().AccountPath(),
				ToAccount:   j.DebitAccount().AccountPath(),
				Amount:      j.Amount.String(),
				JournalType: j.JournalType.String(),
				Timestamp:   j.Timestamp,
			})
		}
	}

	for i, l := range env.Logs {
		out.Logs = append(out.Logs, persistence.LogRow{
			Sequence:  env.Sequence,
			LogIndex:  i,
			LogType:   l.Type.String(),
			Emitter:   lowerHex(l.Emitter),
			From:      lowerHex(l.From),
			To:        lowerHex(l.To),
			Amount:    nullAmount(l.Amount),
			AmountOut: nullAmount(l.AmountOut),
		})
	}
	return out
}

func toProjection(output core.CoreOutput) projection.ProjectionOutput {
	env := output.Envelope
	out := projection.ProjectionOutput{
		Sequence:  env.Sequence,
		EventType: env.EventType.String(),
		Timestamp: env.Timestamp,
	}

	if output.Batch != nil {
		for _, j := range output.Batch.Journals {
			out.Journals = append(out.Journals, projection.JournalEntry{
				Asset:  lowerHex(j.Asset),
				From:   lowerHex(j.From),
				To:     lowerHex(j.To),
				Amount: j.Amount.String(),
			})
		}
	}

	for i, l := range env.Logs {
		if l.Type != event.LogTypeSwapExecuted {
			continue
		}
		out.Swaps = append(out.Swaps, projection.SwapEntry{
			LogIndex:  i,
			Pool:      lowerHex(l.Emitter),
			Trader:    lowerHex(l.From),
			Recipient: lowerHex(l.To),
			AmountIn:  amountString(l.Amount),
			AmountOut: amountString(l.AmountOut),
		})
	}
	return out
}

func toPublishable(output core.CoreOutput) ingestion.PublishableEvent {
	env := output.Envelope
	return ingestion.PublishableEvent{
		Sequence:       env.Sequence,
		EventType:      env.EventType.String(),
		IdempotencyKey: env.IdempotencyKey,
		Sender:         env.Sender.Hex(),
		Payload:        env.Payload,
		Logs:           env.Logs,
		StateHash:      hex.EncodeToString(env.StateHash[:]),
		Timestamp:      env.Timestamp,
	}
}

func lowerHex(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func nullAmount(v *big.Int) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: v.String(), Valid: true}
}
