package transfer

import (
	"encoding/json"
	"fmt"

	"github.com/withobsrvr/asset-ledger/types"
)

// CommandKind names the transfer command variants.
type CommandKind string

const (
	CommandOpen     CommandKind = "Open"
	CommandContinue CommandKind = "Continue"
	CommandCancel   CommandKind = "Cancel"
)

// Command is the transfer command sum.
type Command struct {
	Kind    CommandKind
	Invoice *Invoice
	Reason  string
}

func Open(invoice Invoice) Command {
	return Command{Kind: CommandOpen, Invoice: &invoice}
}

func Continue() Command {
	return Command{Kind: CommandContinue}
}

func Cancel(reason string) Command {
	return Command{Kind: CommandCancel, Reason: reason}
}

func (c Command) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case CommandOpen:
		return types.MarshalTagged(string(CommandOpen), c.Invoice)
	case CommandContinue:
		return types.MarshalUnit(string(CommandContinue))
	case CommandCancel:
		return types.MarshalTagged(string(CommandCancel), struct {
			Reason string `json:"reason"`
		}{c.Reason})
	}
	return nil, fmt.Errorf("unknown transfer command %q", c.Kind)
}

func (c *Command) UnmarshalJSON(data []byte) error {
	tag, payload, err := types.UnmarshalTagged(data)
	if err != nil {
		return err
	}
	switch CommandKind(tag) {
	case CommandOpen:
		var invoice Invoice
		if err := json.Unmarshal(payload, &invoice); err != nil {
			return err
		}
		*c = Command{Kind: CommandOpen, Invoice: &invoice}
	case CommandContinue:
		*c = Command{Kind: CommandContinue}
	case CommandCancel:
		var p struct {
			Reason string `json:"reason"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		*c = Command{Kind: CommandCancel, Reason: p.Reason}
	default:
		return fmt.Errorf("unknown transfer command %q", tag)
	}
	return nil
}
