package transfer

import (
	"context"
	"fmt"

	"github.com/withobsrvr/asset-ledger/cqrs"
	"github.com/withobsrvr/asset-ledger/types"
)

// Phase is the transfer state machine tag.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseOpened        Phase = "opened"
	PhaseDone          Phase = "done"
	PhaseFailed        Phase = "failed"
	PhaseCancelled     Phase = "cancelled"
)

// StateError rejects a command the transfer cannot accept in its phase.
type StateError struct {
	Phase   Phase
	Command string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("invalid state: transfer in phase %s cannot accept %s", e.Phase, e.Command)
}

// Transfer is the two-leg debit/credit saga: one Continue debits the source
// account and credits the destination, both keyed by the transfer id.
type Transfer struct {
	Phase     Phase           `json:"phase"`
	Invoice   *Invoice        `json:"invoice,omitempty"`
	Timestamp types.Timestamp `json:"timestamp,omitempty"`
	Reason    string          `json:"reason,omitempty"`

	svc *Services
}

// Engine is the command engine instantiated for the transfer aggregate.
type Engine = cqrs.Engine[*Transfer, Command, Event]

// NewTransfer returns the engine factory for the transfer aggregate.
func NewTransfer(svc *Services) func() *Transfer {
	return func() *Transfer {
		return &Transfer{Phase: PhaseUninitialized, svc: svc}
	}
}

// AggregateType implements cqrs.Aggregate.
func (t *Transfer) AggregateType() string { return "transfer" }

// Handle implements cqrs.Aggregate.
func (t *Transfer) Handle(ctx context.Context, cmd Command) ([]Event, error) {
	switch cmd.Kind {
	case CommandOpen:
		if t.Phase != PhaseUninitialized {
			return nil, &StateError{Phase: t.Phase, Command: "Open"}
		}
		return []Event{Opened(*cmd.Invoice)}, nil

	case CommandCancel:
		if t.Phase != PhaseOpened {
			return nil, &StateError{Phase: t.Phase, Command: "Cancel"}
		}
		return []Event{Cancelled(cmd.Reason)}, nil

	case CommandContinue:
		if t.Phase != PhaseOpened {
			return nil, &StateError{Phase: t.Phase, Command: "Continue"}
		}
		return t.run(ctx)
	}
	return nil, &StateError{Phase: t.Phase, Command: string(cmd.Kind)}
}

// run executes both legs. Duplicate rejections count as success so a
// retried Continue converges; compensation fires only when a leg is
// rejected by the domain after the debit landed.
func (t *Transfer) run(ctx context.Context) ([]Event, error) {
	now := t.svc.now()
	invoice := t.Invoice

	debited, err := t.svc.debit(ctx, invoice, now)
	if err != nil {
		if cqrs.IsInfrastructure(err) {
			return nil, err
		}
		// Nothing landed; terminate.
		return []Event{Failed(err.Error(), now)}, nil
	}

	credited, err := t.svc.credit(ctx, invoice, now)
	if err != nil {
		if cqrs.IsInfrastructure(err) {
			// Outcome unknown: keep the debit and let a retried Continue
			// finish the credit. Infrastructure errors are not
			// compensated.
			debited.Commit()
			return nil, err
		}
		// The credit was rejected; reverse the debit and terminate.
		debited.Release()
		return []Event{Failed(err.Error(), now)}, nil
	}

	debited.Commit()
	credited.Commit()
	return []Event{Done(now)}, nil
}

// Apply implements cqrs.Aggregate.
func (t *Transfer) Apply(event Event) {
	switch event.Kind {
	case OpenedEvent:
		t.Phase = PhaseOpened
		t.Invoice = event.Invoice
	case DoneEvent:
		t.Phase = PhaseDone
		t.Timestamp = event.Timestamp
	case FailedEvent:
		t.Phase = PhaseFailed
		t.Reason = event.Reason
		t.Timestamp = event.Timestamp
	case CancelledEvent:
		t.Phase = PhaseCancelled
		t.Reason = event.Reason
	}
}
