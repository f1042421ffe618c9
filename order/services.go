package order

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/withobsrvr/asset-ledger/account"
	"github.com/withobsrvr/asset-ledger/guard"
	"github.com/withobsrvr/asset-ledger/types"
)

// AccountDriver submits a command to one account aggregate. The concrete
// implementation is the account engine; nested submissions run through the
// same replay/persist pipeline as direct client commands.
type AccountDriver interface {
	Execute(ctx context.Context, accountID string, cmd account.Command) error
}

// Services is the order saga's handle on the outside world.
type Services struct {
	Accounts AccountDriver
	Logger   *zap.Logger
	// Clock stamps saga checkpoints; overridable in tests.
	Clock func() types.Timestamp
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

// lockFunds reserves amount of asset on accountID under lock id orderID,
// which doubles as the idempotency key: a retried Continue re-submits the
// same lock and the duplicate rejection counts as success. The returned
// guard unlocks the funds unless committed.
func (s *Services) lockFunds(ctx context.Context, orderID types.ID32, accountID string, asset types.Asset, amount types.Amount, timestamp types.Timestamp) (*guard.Guard, error) {
	undo := func() {
		err := s.Accounts.Execute(context.Background(), accountID, account.UnlockFunds(orderID))
		if err != nil && !errors.Is(err, account.ErrLockNotFound) {
			s.Logger.Error("failed to unlock funds",
				zap.String("order_id", orderID.Hex()),
				zap.String("account_id", accountID),
				zap.Error(err),
			)
		}
	}

	err := s.Accounts.Execute(ctx, accountID, account.LockFunds(orderID, timestamp, asset, amount))
	switch {
	case err == nil,
		errors.Is(err, account.ErrDuplicateLock),
		errors.Is(err, account.ErrDuplicateTransaction):
		return guard.New(undo), nil
	default:
		undo()
		return nil, err
	}
}

// unlockFunds releases the order's lock on accountID. A missing lock means
// a prior attempt already released it.
func (s *Services) unlockFunds(ctx context.Context, orderID types.ID32, accountID string) error {
	err := s.Accounts.Execute(ctx, accountID, account.UnlockFunds(orderID))
	if err != nil && !errors.Is(err, account.ErrLockNotFound) {
		return err
	}
	return nil
}

// settle delivers accountID's lock to toAccount, recording the receive leg.
// The order id is the settle txid, so a replayed leg reports a duplicate
// and counts as success.
func (s *Services) settle(ctx context.Context, orderID types.ID32, accountID, toAccount string, receiveAsset types.Asset, receiveAmount types.Amount, timestamp types.Timestamp) error {
	cmd := account.Settle(orderID, timestamp, toAccount, receiveAsset, receiveAmount)
	err := s.Accounts.Execute(ctx, accountID, cmd)
	if err != nil && !errors.Is(err, account.ErrDuplicateTransaction) {
		return err
	}
	return nil
}
