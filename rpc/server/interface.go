package server

import (
	"github.com/sphagnumdb/sphagnum/lib/store"
	"github.com/sphagnumdb/sphagnum/rpc/common"
)

// IRPCServerAdapter executes a decoded request against a store. Failures are
// reported inside the returned message, never as a Go error.
type IRPCServerAdapter interface {
	Handle(req *common.Message, store store.IStore) (resp *common.Message)
}

// MessageHandler handles the decoded requests of one shard id
type MessageHandler func(req *common.Message) (resp *common.Message)
