package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[SyncOrdersMessage]            = (*SyncOrdersCommand)(nil)
	_ gocmd.Commander[SyncProductsMessage]          = (*SyncProductsCommand)(nil)
	_ gocmd.Commander[SyncReturnsMessage]           = (*SyncReturnsCommand)(nil)
	_ gocmd.Commander[SyncAllMessage]               = (*SyncAllCommand)(nil)
	_ gocmd.Commander[RefreshOrderMessage]          = (*RefreshOrderCommand)(nil)
	_ gocmd.Commander[RefreshTokensMessage]         = (*RefreshTokensCommand)(nil)
	_ gocmd.Commander[ProcessQueueMessage]          = (*ProcessQueueCommand)(nil)
	_ gocmd.Commander[EnqueueSyncMessage]           = (*EnqueueSyncCommand)(nil)
	_ gocmd.Commander[CompleteAuthorizationMessage] = (*CompleteAuthorizationCommand)(nil)
)
