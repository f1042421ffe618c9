package transfer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/withobsrvr/asset-ledger/account"
	"github.com/withobsrvr/asset-ledger/guard"
	"github.com/withobsrvr/asset-ledger/types"
)

// AccountDriver submits a command to one account aggregate.
type AccountDriver interface {
	Execute(ctx context.Context, accountID string, cmd account.Command) error
}

// Services is the transfer saga's handle on the outside world.
type Services struct {
	Accounts AccountDriver
	Logger   *zap.Logger
	Clock    func() types.Timestamp
}

// NewServices wires the saga to an account driver.
func NewServices(accounts AccountDriver, logger *zap.Logger) *Services {
	return &Services{
		Accounts: accounts,
		Logger:   logger,
		Clock: func() types.Timestamp {
			return types.Timestamp(time.Now().Unix())
		},
	}
}

func (s *Services) now() types.Timestamp {
	return s.Clock()
}

// debit takes the transfer amount out of the source account. The transfer
// id is the txid for both the debit and its compensation, so replays of
// either are idempotent. The returned guard reverses the debit unless
// committed.
func (s *Services) debit(ctx context.Context, invoice *Invoice, timestamp types.Timestamp) (*guard.Guard, error) {
	undo := func() {
		cmd := account.ReverseDebit(invoice.TransferID, timestamp, invoice.ToAccount, invoice.Asset, invoice.Amount)
		err := s.Accounts.Execute(context.Background(), invoice.FromAccount, cmd)
		if err != nil && !errors.Is(err, account.ErrTransactionNotFound) {
			s.Logger.Error("failed to reverse debit",
				zap.String("transfer_id", invoice.TransferID.Hex()),
				zap.String("account_id", invoice.FromAccount),
				zap.Error(err),
			)
		}
	}

	cmd := account.Debit(invoice.TransferID, timestamp, invoice.ToAccount, invoice.Asset, invoice.Amount)
	err := s.Accounts.Execute(ctx, invoice.FromAccount, cmd)
	if err != nil && !errors.Is(err, account.ErrDuplicateTransaction) {
		return nil, err
	}
	return guard.New(undo), nil
}

// credit lands the transfer amount on the destination account.
func (s *Services) credit(ctx context.Context, invoice *Invoice, timestamp types.Timestamp) (*guard.Guard, error) {
	undo := func() {
		cmd := account.ReverseCredit(invoice.TransferID, timestamp, invoice.FromAccount, invoice.Asset, invoice.Amount)
		err := s.Accounts.Execute(context.Background(), invoice.ToAccount, cmd)
		if err != nil && !errors.Is(err, account.ErrTransactionNotFound) {
			s.Logger.Error("failed to reverse credit",
				zap.String("transfer_id", invoice.TransferID.Hex()),
				zap.String("account_id", invoice.ToAccount),
				zap.Error(err),
			)
		}
	}

	cmd := account.Credit(invoice.TransferID, timestamp, invoice.FromAccount, invoice.Asset, invoice.Amount)
	err := s.Accounts.Execute(ctx, invoice.ToAccount, cmd)
	if err != nil && !errors.Is(err, account.ErrDuplicateTransaction) {
		return nil, err
	}
	return guard.New(undo), nil
}
