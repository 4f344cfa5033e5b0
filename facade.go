package marketsync

import (
	"fmt"

	"github.com/goliatone/go-marketsync/adapters/gocommand"
	marketcommand "github.com/goliatone/go-marketsync/command"
	marketquery "github.com/goliatone/go-marketsync/query"
)

type Commands struct {
	SyncOrders            *marketcommand.SyncOrdersCommand
	SyncProducts          *marketcommand.SyncProductsCommand
	SyncReturns           *marketcommand.SyncReturnsCommand
	SyncAll               *marketcommand.SyncAllCommand
	RefreshOrder          *marketcommand.RefreshOrderCommand
	RefreshTokens         *marketcommand.RefreshTokensCommand
	ProcessQueue          *marketcommand.ProcessQueueCommand
	EnqueueSync           *marketcommand.EnqueueSyncCommand
	CompleteAuthorization *marketcommand.CompleteAuthorizationCommand
}

type Queries struct {
	LoadSyncCursor  *marketquery.LoadSyncCursorQuery
	ListWebhookLogs *marketquery.ListWebhookLogsQuery
	GetQueueItem    *marketquery.GetQueueItemQuery
	ListShops       *marketquery.ListShopsQuery
}

// Facade exposes the service as go-command handlers for the HTTP surface
// and the dispatcher.
type Facade struct {
	service  *Service
	commands Commands
	queries  Queries
}

func NewFacade(service *Service) (*Facade, error) {
	if service == nil || service.Jobs == nil {
		return nil, fmt.Errorf("marketsync: service is required")
	}
	facade := &Facade{service: service}
	facade.commands = Commands{
		SyncOrders:            marketcommand.NewSyncOrdersCommand(service.Jobs),
		SyncProducts:          marketcommand.NewSyncProductsCommand(service.Jobs),
		SyncReturns:           marketcommand.NewSyncReturnsCommand(service.Jobs),
		SyncAll:               marketcommand.NewSyncAllCommand(service.Jobs),
		RefreshOrder:          marketcommand.NewRefreshOrderCommand(service.Jobs),
		RefreshTokens:         marketcommand.NewRefreshTokensCommand(service.Jobs),
		ProcessQueue:          marketcommand.NewProcessQueueCommand(service.Jobs),
		EnqueueSync:           marketcommand.NewEnqueueSyncCommand(service.Worker),
		CompleteAuthorization: marketcommand.NewCompleteAuthorizationCommand(service.Tokens),
	}
	facade.queries = Queries{
		LoadSyncCursor:  marketquery.NewLoadSyncCursorQuery(service.Stores.Cursors),
		ListWebhookLogs: marketquery.NewListWebhookLogsQuery(service.Stores.WebhookLog),
		GetQueueItem:    marketquery.NewGetQueueItemQuery(service.Stores.Queue),
		ListShops:       marketquery.NewListShopsQuery(service.Stores.Tokens, service.Config.Tokens.SafetyMargin()),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() *Service {
	if f == nil {
		return nil
	}
	return f.service
}

// Register subscribes every command and query on the go-command dispatcher
// and records them in the registry. The subscriptions are added to subs.
func (f *Facade) Register(adapter *gocommand.RegistryAdapter, subs *gocommand.Subscriptions) error {
	if f == nil {
		return fmt.Errorf("marketsync: facade is nil")
	}
	c := f.commands
	q := f.queries
	steps := []func() error{
		func() error { return gocommand.RegisterAndSubscribe(adapter, subs, c.SyncOrders) },
		func() error { return gocommand.RegisterAndSubscribe(adapter, subs, c.SyncProducts) },
		func() error { return gocommand.RegisterAndSubscribe(adapter, subs, c.SyncReturns) },
		func() error { return gocommand.RegisterAndSubscribe(adapter, subs, c.SyncAll) },
		func() error { return gocommand.RegisterAndSubscribe(adapter, subs, c.RefreshOrder) },
		func() error { return gocommand.RegisterAndSubscribe(adapter, subs, c.RefreshTokens) },
		func() error { return gocommand.RegisterAndSubscribe(adapter, subs, c.ProcessQueue) },
		func() error { return gocommand.RegisterAndSubscribe(adapter, subs, c.EnqueueSync) },
		func() error { return gocommand.RegisterAndSubscribe(adapter, subs, c.CompleteAuthorization) },
		func() error { return gocommand.RegisterAndSubscribeQuery(adapter, subs, q.LoadSyncCursor) },
		func() error { return gocommand.RegisterAndSubscribeQuery(adapter, subs, q.ListWebhookLogs) },
		func() error { return gocommand.RegisterAndSubscribeQuery(adapter, subs, q.GetQueueItem) },
		func() error { return gocommand.RegisterAndSubscribeQuery(adapter, subs, q.ListShops) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			subs.Unsubscribe()
			return err
		}
	}
	return nil
}
