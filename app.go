package main

import (
	"go.uber.org/zap"

	"github.com/withobsrvr/asset-ledger/account"
	"github.com/withobsrvr/asset-ledger/cqrs"
	"github.com/withobsrvr/asset-ledger/order"
	"github.com/withobsrvr/asset-ledger/server"
	"github.com/withobsrvr/asset-ledger/transfer"
)

// application holds the wired command engines and the view store. The
// account engine is built first: the order and transfer sagas receive it as
// their account driver, so their nested commands run through the same
// replay/persist pipeline as direct client commands.
type application struct {
	accounts  *account.Engine
	orders    *order.Engine
	transfers *transfer.Engine
	views     cqrs.ViewRepository
}

func newApplication(logger *zap.Logger, events cqrs.EventStore, views cqrs.ViewRepository, snapshotInterval uint64) *application {
	projectionError := func(err error) {
		server.CountProjectionError()
		logger.Error("projection failed", zap.Error(err))
	}

	accountView := cqrs.NewGenericQuery(account.ViewName, views, account.NewView)
	accountView.UseErrorHandler(projectionError)
	accounts := cqrs.NewEngine[*account.Account, account.Command, account.Event](events, account.NewAccount).
		WithQueries(&cqrs.SimpleLoggingQuery[account.Event]{Logger: logger}, accountView).
		WithSnapshots(snapshotInterval).
		WithLogger(logger)

	orderView := cqrs.NewGenericQuery(order.ViewName, views, order.NewView)
	orderView.UseErrorHandler(projectionError)
	orderServices := order.NewServices(accounts, logger)
	orders := cqrs.NewEngine[*order.Order, order.Command, order.Event](events, order.NewOrder(orderServices)).
		WithQueries(&cqrs.SimpleLoggingQuery[order.Event]{Logger: logger}, orderView).
		WithSnapshots(snapshotInterval).
		WithLogger(logger)

	transferView := cqrs.NewGenericQuery(transfer.ViewName, views, transfer.NewView)
	transferView.UseErrorHandler(projectionError)
	transferServices := transfer.NewServices(accounts, logger)
	transfers := cqrs.NewEngine[*transfer.Transfer, transfer.Command, transfer.Event](events, transfer.NewTransfer(transferServices)).
		WithQueries(&cqrs.SimpleLoggingQuery[transfer.Event]{Logger: logger}, transferView).
		WithSnapshots(snapshotInterval).
		WithLogger(logger)

	return &application{
		accounts:  accounts,
		orders:    orders,
		transfers: transfers,
		views:     views,
	}
}
