package ingestion

import (
	"SwapLedger/internal/event"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// ErrMalformed marks payloads that can never be applied as sent
var ErrMalformed = errors.New("malformed call")

// CallSubjectPrefix is the subject family calls arrive on:
// swapledger.calls.{EventType}
const CallSubjectPrefix = "swapledger.calls."

// ParseRawEvent converts a RawEvent into a typed call, resolving the call
// type from the subject.
func ParseRawEvent(raw RawEvent) (event.Event, error) {
	eventType, err := EventTypeFromSubject(raw.Subject)
	if err != nil {
		return nil, err
	}
	return ParseCall(eventType, raw.Data)
}

// EventTypeFromSubject returns the call type named by the last token of a
// call subject.
func EventTypeFromSubject(subject string) (string, error) {
	name, ok := strings.CutPrefix(subject, CallSubjectPrefix)
	if !ok || name == "" || strings.Contains(name, ".") {
		return "", fmt.Errorf("%w: subject %q is not a call subject", ErrMalformed, subject)
	}
	return name, nil
}

// ParseCall decodes a JSON call of the named type. Unknown fields are
// rejected; amounts are JSON integers of any size.
func ParseCall(eventType string, data []byte) (event.Event, error) {
	evt, ok := newCall(event.ParseEventType(eventType))
	if !ok {
		return nil, fmt.Errorf("%w: unknown call type %q", ErrMalformed, eventType)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(evt); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrMalformed, eventType, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: parse %s: trailing data", ErrMalformed, eventType)
	}
	return evt, nil
}

// ValidateHeader checks the fields every call needs before it reaches the
// engine.
func ValidateHeader(evt event.Event) error {
	headed, ok := evt.(interface{ Head() *event.Header })
	if !ok {
		return fmt.Errorf("%w: %T has no header", ErrMalformed, evt)
	}
	h := headed.Head()
	switch {
	case h.ID == uuid.Nil:
		return fmt.Errorf("%w: missing id", ErrMalformed)
	case h.Sender == (common.Address{}):
		return fmt.Errorf("%w: missing sender", ErrMalformed)
	case h.Timestamp.IsZero():
		return fmt.Errorf("%w: missing timestamp", ErrMalformed)
	}
	return nil
}

func newCall(t event.EventType) (event.Event, bool) {
	switch t {
	case event.EventTypeIssueAsset:
		return &event.IssueAsset{}, true
	case event.EventTypeTransfer:
		return &event.Transfer{}, true
	case event.EventTypeApprove:
		return &event.Approve{}, true
	case event.EventTypeCreatePool:
		return &event.CreatePool{}, true
	case event.EventTypeAddLiquidity:
		return &event.AddLiquidity{}, true
	case event.EventTypeRemoveLiquidity:
		return &event.RemoveLiquidity{}, true
	case event.EventTypeSwapQuoteForBase:
		return &event.SwapQuoteForBase{}, true
	case event.EventTypeSwapBaseForQuote:
		return &event.SwapBaseForQuote{}, true
	case event.EventTypeSwapBaseForOtherBase:
		return &event.SwapBaseForOtherBase{}, true
	case event.EventTypeSwapBaseForAsset:
		return &event.SwapBaseForAsset{}, true
	case event.EventTypeCreateStakingLedger:
		return &event.CreateStakingLedger{}, true
	case event.EventTypeFirstDeposit:
		return &event.FirstDeposit{}, true
	case event.EventTypePartialStake:
		return &event.PartialStake{}, true
	case event.EventTypeStakeAll:
		return &event.StakeAll{}, true
	case event.EventTypePartialUnstake:
		return &event.PartialUnstake{}, true
	case event.EventTypeUnstakeAll:
		return &event.UnstakeAll{}, true
	case event.EventTypeAccrueReward:
		return &event.AccrueReward{}, true
	case event.EventTypeClaimPartialReward:
		return &event.ClaimPartialReward{}, true
	case event.EventTypeClaimAllReward:
		return &event.ClaimAllReward{}, true
	case event.EventTypeUnstakeAndClaimAll:
		return &event.UnstakeAndClaimAll{}, true
	default:
		return nil, false
	}
}
