package client

import (
	"encoding/json"
	"fmt"

	"github.com/sphagnumdb/sphagnum/lib/db"
	"github.com/sphagnumdb/sphagnum/lib/merkle"
	"github.com/sphagnumdb/sphagnum/lib/passport"
	"github.com/sphagnumdb/sphagnum/rpc/common"
)

// ProofResult is the answer of a Seed to a proof request
type ProofResult struct {
	Root   merkle.Hash
	Proof  *merkle.Proof
	Record *db.Record // nil if the replica holds no record for the key
}

// Verify checks the proof against the root the Seed reported: a membership
// proof of the record if there is one, a non-membership proof otherwise.
func (r *ProofResult) Verify(key string) error {
	if r.Record != nil {
		if r.Record.Key != key {
			return fmt.Errorf("%w: record for %q returned for key %q", merkle.ErrProofMismatch, r.Record.Key, key)
		}
		return r.Proof.VerifyMembership(r.Root, key, merkle.RecordDigest(*r.Record))
	}
	return r.Proof.VerifyNonMembership(r.Root, key)
}

// Root returns the Merkle root of the Field replica of the Seed and the number of records under it
func (c *Client) Root() (merkle.Hash, uint64, error) {
	resp, err := c.Invoke(common.NewRootRequest())
	if err != nil {
		return merkle.Hash{}, 0, err
	}
	root, err := toHash(resp.Value)
	return root, resp.Count, err
}

// Proof asks the Seed for the Merkle proof of key. The result is not verified.
func (c *Client) Proof(key string) (*ProofResult, error) {
	resp, err := c.Invoke(common.NewProofRequest(key))
	if err != nil {
		return nil, err
	}
	root, err := toHash(resp.Meta)
	if err != nil {
		return nil, err
	}
	proof, err := merkle.UnmarshalProof(resp.Value)
	if err != nil {
		return nil, err
	}
	result := &ProofResult{Root: root, Proof: proof}
	if resp.Ok && len(resp.Records) == 1 {
		result.Record = &resp.Records[0]
	}
	return result, nil
}

// Verify asks the Seed to compare its Merkle root with all replicas of its Field
func (c *Client) Verify() (*common.VerifyReport, error) {
	resp, err := c.Invoke(common.NewVerifyRequest())
	if err != nil {
		return nil, err
	}
	var report common.VerifyReport
	if err := json.Unmarshal(resp.Meta, &report); err != nil {
		return nil, fmt.Errorf("failed to decode verify report: %w", err)
	}
	return &report, nil
}

// Passport returns the passport of the Seed
func (c *Client) Passport() (*passport.Passport, error) {
	resp, err := c.Invoke(common.NewPassportRequest())
	if err != nil {
		return nil, err
	}
	return passport.Unmarshal(resp.Meta)
}

// Members returns the passports of all live Seeds the Seed knows, itself included
func (c *Client) Members() ([]passport.Passport, error) {
	resp, err := c.Invoke(common.NewMembersRequest())
	if err != nil {
		return nil, err
	}
	var members []passport.Passport
	if err := json.Unmarshal(resp.Meta, &members); err != nil {
		return nil, fmt.Errorf("failed to decode members: %w", err)
	}
	return members, nil
}
