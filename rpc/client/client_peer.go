package client

import (
	"github.com/sphagnumdb/sphagnum/lib/db"
	"github.com/sphagnumdb/sphagnum/lib/merkle"
	"github.com/sphagnumdb/sphagnum/rpc/common"
)

// --------------------------------------------------------------------------
// Peer operations, sent by Seeds to replicas of their own Field
// --------------------------------------------------------------------------

// Replicate pushes records to the replica and returns how many it applied
func (c *Client) Replicate(records []db.Record) (uint64, error) {
	resp, err := c.Invoke(common.NewReplicateRequest(records))
	if err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// Fetch returns the raw records the replica holds for keys
func (c *Client) Fetch(keys ...string) ([]db.Record, error) {
	resp, err := c.Invoke(common.NewFetchRequest(keys...))
	if err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// Digest returns the Merkle root of the replica and the number of records under it
func (c *Client) Digest() (merkle.Hash, uint64, error) {
	resp, err := c.Invoke(common.NewDigestRequest())
	if err != nil {
		return merkle.Hash{}, 0, err
	}
	root, err := toHash(resp.Value)
	return root, resp.Count, err
}

// Leaves returns the bucket hashes of the Merkle tree of the replica
func (c *Client) Leaves() ([]merkle.Hash, error) {
	resp, err := c.Invoke(common.NewLeavesRequest())
	if err != nil {
		return nil, err
	}
	return DecodeLeaves(resp.Value, int(resp.Count))
}

// SyncBuckets returns all records of the replica in the given buckets
func (c *Client) SyncBuckets(buckets []uint32) ([]db.Record, error) {
	resp, err := c.Invoke(common.NewSyncBucketsRequest(buckets))
	if err != nil {
		return nil, err
	}
	return resp.Records, nil
}
