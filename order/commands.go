package order

import (
	"encoding/json"
	"fmt"

	"github.com/withobsrvr/asset-ledger/types"
)

// CommandKind names the order command variants.
type CommandKind string

const (
	CommandOpen     CommandKind = "Open"
	CommandContinue CommandKind = "Continue"
	CommandCancel   CommandKind = "Cancel"
	CommandBuy      CommandKind = "Buy"
)

// Command is the order command sum. Continue is the saga driver: each call
// attempts the next outbound effect for the current phase.
type Command struct {
	Kind      CommandKind
	Config    *Config
	Reason    string
	Buyer     string
	Timestamp types.Timestamp
}

func Open(config Config) Command {
	return Command{Kind: CommandOpen, Config: &config}
}

func Continue() Command {
	return Command{Kind: CommandContinue}
}

func Cancel(reason string) Command {
	return Command{Kind: CommandCancel, Reason: reason}
}

func Buy(buyer string, timestamp types.Timestamp) Command {
	return Command{Kind: CommandBuy, Buyer: buyer, Timestamp: timestamp}
}

func (c Command) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case CommandOpen:
		return types.MarshalTagged(string(CommandOpen), struct {
			Config *Config `json:"config"`
		}{c.Config})
	case CommandContinue:
		return types.MarshalUnit(string(CommandContinue))
	case CommandCancel:
		return types.MarshalTagged(string(CommandCancel), struct {
			Reason string `json:"reason"`
		}{c.Reason})
	case CommandBuy:
		return types.MarshalTagged(string(CommandBuy), buyingPayload{c.Buyer, c.Timestamp})
	}
	return nil, fmt.Errorf("unknown order command %q", c.Kind)
}

func (c *Command) UnmarshalJSON(data []byte) error {
	tag, payload, err := types.UnmarshalTagged(data)
	if err != nil {
		return err
	}
	kind := CommandKind(tag)
	switch kind {
	case CommandOpen:
		var p struct {
			Config *Config `json:"config"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		*c = Command{Kind: kind, Config: p.Config}
	case CommandContinue:
		*c = Command{Kind: CommandContinue}
	case CommandCancel:
		var p struct {
			Reason string `json:"reason"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		*c = Command{Kind: kind, Reason: p.Reason}
	case CommandBuy:
		var p buyingPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		*c = Command{Kind: kind, Buyer: p.Buyer, Timestamp: p.Timestamp}
	default:
		return fmt.Errorf("unknown order command %q", tag)
	}
	return nil
}
