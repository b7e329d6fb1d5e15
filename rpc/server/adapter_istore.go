package server

import (
	"github.com/sphagnumdb/sphagnum/lib/store"
	"github.com/sphagnumdb/sphagnum/rpc/common"
)

// NewIStoreServerAdapter returns the adapter that executes client key operations on a store
func NewIStoreServerAdapter() IRPCServerAdapter {
	return &iStoreServerAdapterImpl{}
}

type iStoreServerAdapterImpl struct{}

func (adapter *iStoreServerAdapterImpl) Handle(req *common.Message, s store.IStore) *common.Message {
	if s == nil {
		return common.NewErrorResponse("handler: store is nil")
	}

	switch req.MsgType {
	case common.MsgTKVSet:
		return common.NewSetResponse(s.Set(req.Key, req.Value))
	case common.MsgTKVSetE:
		return common.NewSetEResponse(s.SetE(req.Key, req.Value, req.ExpireIn, req.DeleteIn))
	case common.MsgTKVSetEIfUnset:
		return common.NewSetEIfUnsetResponse(s.SetEIfUnset(req.Key, req.Value, req.ExpireIn, req.DeleteIn))
	case common.MsgTKVAppend:
		length, err := s.Append(req.Key, req.Value)
		return common.NewAppendResponse(length, err)
	case common.MsgTKVExpire:
		return common.NewExpireResponse(s.Expire(req.Key))
	case common.MsgTKVDelete:
		removed, err := s.Delete(keysOf(req)...)
		return common.NewDeleteResponse(removed, err)
	case common.MsgTKVExists:
		count, err := s.Exists(keysOf(req)...)
		return common.NewExistsResponse(count, err)
	case common.MsgTKVGet:
		val, ok, err := s.Get(req.Key)
		return common.NewGetResponse(val, ok, err)
	case common.MsgTKVHas:
		ok, err := s.Has(req.Key)
		return common.NewHasResponse(ok, err)
	default:
		return common.NewErrorResponse(
			store.Errorf(store.RetCUnsupportedOperation, "unsupported message type: %s", req.MsgType).Error(),
		)
	}
}

// keysOf returns the keys of a multi key request. A request that only sets Key
// is treated as a request for that single key.
func keysOf(req *common.Message) []string {
	if len(req.Keys) == 0 && req.Key != "" {
		return []string{req.Key}
	}
	return req.Keys
}

// Keys returns all keys a client request operates on
func Keys(req *common.Message) []string {
	switch req.MsgType {
	case common.MsgTKVDelete, common.MsgTKVExists:
		return keysOf(req)
	default:
		if req.Key == "" {
			return nil
		}
		return []string{req.Key}
	}
}
