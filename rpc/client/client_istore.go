package client

import (
	"github.com/sphagnumdb/sphagnum/lib/db"
	"github.com/sphagnumdb/sphagnum/lib/store"
	"github.com/sphagnumdb/sphagnum/rpc/common"
)

// --------------------------------------------------------------------------
// Interface Methods (docu see the store package in interface.go)
// --------------------------------------------------------------------------

func (c *Client) Set(key string, value []byte) (err error) {
	_, err = c.Invoke(common.NewSetRequest(key, value))
	return err
}

func (c *Client) SetE(key string, value []byte, expireIn, deleteIn uint64) (err error) {
	_, err = c.Invoke(common.NewSetERequest(key, value, expireIn, deleteIn))
	return err
}

func (c *Client) SetEIfUnset(key string, value []byte, expireIn, deleteIn uint64) (err error) {
	_, err = c.Invoke(common.NewSetEIfUnsetRequest(key, value, expireIn, deleteIn))
	return err
}

func (c *Client) Append(key string, value []byte) (length uint64, err error) {
	resp, err := c.Invoke(common.NewAppendRequest(key, value))
	if err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (c *Client) Expire(key string) (err error) {
	_, err = c.Invoke(common.NewExpireRequest(key))
	return err
}

func (c *Client) Delete(keys ...string) (removed uint64, err error) {
	resp, err := c.Invoke(common.NewDeleteRequest(keys...))
	if err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (c *Client) Exists(keys ...string) (count uint64, err error) {
	resp, err := c.Invoke(common.NewExistsRequest(keys...))
	if err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (c *Client) Get(key string) (value []byte, loaded bool, err error) {
	resp, err := c.Invoke(common.NewGetRequest(key))
	if err != nil {
		return nil, false, err
	}
	return resp.Value, resp.Ok, nil
}

func (c *Client) Has(key string) (loaded bool, err error) {
	resp, err := c.Invoke(common.NewHasRequest(key))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

// Scan is not available over rpc, replicas exchange records through SyncBuckets
func (c *Client) Scan(func(db.Record) bool) error {
	return store.NewError(store.RetCUnsupportedOperation, "scan is not available over rpc")
}

// GetDBInfo is not available over rpc
func (c *Client) GetDBInfo() (info db.DatabaseInfo, err error) {
	return db.DatabaseInfo{}, store.NewError(store.RetCUnsupportedOperation, "db info is not available over rpc")
}
