package transfer

import (
	"encoding/json"
	"fmt"

	"github.com/withobsrvr/asset-ledger/types"
)

// Invoice is the immutable transfer setup, fixed at Open.
type Invoice struct {
	TransferID  types.ID32      `json:"transfer_id"`
	FromAccount string          `json:"from_account"`
	ToAccount   string          `json:"to_account"`
	Asset       types.Asset     `json:"asset"`
	Amount      types.Amount    `json:"amount"`
	Timestamp   types.Timestamp `json:"timestamp"`
	Description string          `json:"description"`
}

// EventKind names the transfer event variants.
type EventKind string

const (
	OpenedEvent    EventKind = "Opened"
	DoneEvent      EventKind = "Done"
	FailedEvent    EventKind = "Failed"
	CancelledEvent EventKind = "Cancelled"
)

// Event is one transfer saga checkpoint.
type Event struct {
	Kind      EventKind
	Invoice   *Invoice
	Timestamp types.Timestamp
	Reason    string
}

// EventType implements cqrs.DomainEvent.
func (e Event) EventType() string { return string(e.Kind) }

// EventVersion implements cqrs.DomainEvent.
func (e Event) EventVersion() string { return "1.0" }

func Opened(invoice Invoice) Event {
	return Event{Kind: OpenedEvent, Invoice: &invoice}
}

func Done(timestamp types.Timestamp) Event {
	return Event{Kind: DoneEvent, Timestamp: timestamp}
}

func Failed(reason string, timestamp types.Timestamp) Event {
	return Event{Kind: FailedEvent, Reason: reason, Timestamp: timestamp}
}

func Cancelled(reason string) Event {
	return Event{Kind: CancelledEvent, Reason: reason}
}

// JSON wire form.

func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case OpenedEvent:
		return types.MarshalTagged(string(OpenedEvent), e.Invoice)
	case DoneEvent:
		return types.MarshalTagged(string(DoneEvent), struct {
			Timestamp types.Timestamp `json:"timestamp"`
		}{e.Timestamp})
	case FailedEvent:
		return types.MarshalTagged(string(FailedEvent), struct {
			Reason    string          `json:"reason"`
			Timestamp types.Timestamp `json:"timestamp"`
		}{e.Reason, e.Timestamp})
	case CancelledEvent:
		return types.MarshalTagged(string(CancelledEvent), struct {
			Reason string `json:"reason"`
		}{e.Reason})
	}
	return nil, fmt.Errorf("unknown transfer event %q", e.Kind)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	tag, payload, err := types.UnmarshalTagged(data)
	if err != nil {
		return err
	}
	kind := EventKind(tag)
	switch kind {
	case OpenedEvent:
		var invoice Invoice
		if err := json.Unmarshal(payload, &invoice); err != nil {
			return err
		}
		*e = Event{Kind: kind, Invoice: &invoice}
	case DoneEvent:
		var p struct {
			Timestamp types.Timestamp `json:"timestamp"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		*e = Event{Kind: kind, Timestamp: p.Timestamp}
	case FailedEvent:
		var p struct {
			Reason    string          `json:"reason"`
			Timestamp types.Timestamp `json:"timestamp"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		*e = Event{Kind: kind, Reason: p.Reason, Timestamp: p.Timestamp}
	case CancelledEvent:
		var p struct {
			Reason string `json:"reason"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		*e = Event{Kind: kind, Reason: p.Reason}
	default:
		return fmt.Errorf("unknown transfer event %q", tag)
	}
	return nil
}
