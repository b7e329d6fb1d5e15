package seed

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sphagnumdb/sphagnum/lib/passport"
	"github.com/sphagnumdb/sphagnum/lib/store"
	"github.com/sphagnumdb/sphagnum/rpc/client"
	"github.com/sphagnumdb/sphagnum/rpc/common"
	"github.com/sphagnumdb/sphagnum/rpc/server"
	"github.com/sphagnumdb/sphagnum/rpc/transport"
	"golang.org/x/sync/errgroup"
)

// errorResponse encodes err (a *store.Error keeps its code) into an error message
func errorResponse(err error) *common.Message {
	return common.NewErrorResponse(err.Error())
}

// isRoutable reports whether a request operates on keys and must be served by the Field owning them
func isRoutable(t common.MessageType) bool {
	return t.IsKeyOperation() || t == common.MsgTSeedProof
}

func isSeedOp(t common.MessageType) bool {
	switch t {
	case common.MsgTSeedRoot, common.MsgTSeedVerify, common.MsgTSeedPassport, common.MsgTSeedMembers:
		return true
	}
	return false
}

// HandleRouted handles requests sent to shard id 0. Key operations are routed to
// the Field owning their keys, Seed operations are answered locally.
func (s *Seed) HandleRouted(req *common.Message) *common.Message {
	defer s.metrics.observe(req.MsgType, time.Now())

	switch {
	case isRoutable(req.MsgType):
		return s.route(req)
	case isSeedOp(req.MsgType):
		return s.handleSeedOp(req)
	default:
		return errorResponse(store.Errorf(store.RetCInvalidOperation,
			"%s requests must be addressed to a field", req.MsgType))
	}
}

// HandleField handles requests addressed to the Field of the Seed: key operations
// forwarded by other Seeds and the replication traffic between replicas.
// Key operations for keys of other Fields are rejected, never forwarded again.
func (s *Seed) HandleField(req *common.Message) *common.Message {
	defer s.metrics.observe(req.MsgType, time.Now())

	switch {
	case isRoutable(req.MsgType):
		if err := s.checkOwnership(req); err != nil {
			return errorResponse(err)
		}
		return s.execute(req)
	case isSeedOp(req.MsgType):
		return s.handleSeedOp(req)
	default:
		return s.handlePeerOp(req)
	}
}

// checkOwnership fails with RetCMisrouted if a key of the request belongs to another Field
func (s *Seed) checkOwnership(req *common.Message) error {
	for _, key := range server.Keys(req) {
		if field, ok := s.ring.Locate(key); !ok || field != s.local.Field {
			return store.Errorf(store.RetCMisrouted, "key %q belongs to field %s, not %s", key, field, s.local.Field)
		}
	}
	return nil
}

// route sends a key operation to the Field(s) owning its keys. Multi key
// operations spanning several Fields are split, run concurrently and summed.
func (s *Seed) route(req *common.Message) *common.Message {
	keys := server.Keys(req)
	if len(keys) == 0 {
		return errorResponse(store.Errorf(store.RetCInvalidOperation, "%s request without key", req.MsgType))
	}

	groups, err := s.ring.Partition(keys)
	if err != nil {
		return errorResponse(store.NewError(store.RetCNotFound, err.Error()))
	}
	if len(groups) == 1 {
		for field := range groups {
			return s.dispatch(field, req)
		}
	}

	var total atomic.Uint64
	var g errgroup.Group
	for field, fieldKeys := range groups {
		sub := *req
		sub.Key = ""
		sub.Keys = fieldKeys
		g.Go(func() error {
			resp := s.dispatch(field, &sub)
			if resp.Err != "" {
				return store.ParseError(resp.Err)
			}
			total.Add(resp.Count)
			return nil
		})
	}
	err = g.Wait()

	switch req.MsgType {
	case common.MsgTKVDelete:
		return common.NewDeleteResponse(total.Load(), err)
	case common.MsgTKVExists:
		return common.NewExistsResponse(total.Load(), err)
	default:
		return errorResponse(store.Errorf(store.RetCInvalidOperation, "%s cannot span several fields", req.MsgType))
	}
}

// dispatch executes a request locally or forwards it to the owning Field
func (s *Seed) dispatch(field string, req *common.Message) *common.Message {
	if field == s.local.Field {
		return s.execute(req)
	}
	return s.forward(field, req)
}

// forward sends a request to a live Seed of another Field. Seeds that cannot
// be reached are skipped; an answer of the owner, error or not, is final.
func (s *Seed) forward(field string, req *common.Message) *common.Message {
	peers := s.shuffle(s.seedsOf(field))
	if len(peers) == 0 {
		return errorResponse(store.Errorf(store.RetCNotFound, "no live seed serves field %s", field))
	}

	fwd := *req
	fwd.Forwarded = true

	var lastErr error
	for _, p := range peers {
		var resp *common.Message
		err := s.call(p, func(c *client.Client) (err error) {
			resp, err = c.Invoke(&fwd)
			return err
		})
		if err == nil {
			s.metrics.forwarded.Inc()
			return resp
		}
		var storeErr *store.Error
		if errors.As(err, &storeErr) {
			return errorResponse(storeErr)
		}
		lastErr = err
		log.Debugf("failed to forward %s to %s: %v", req.MsgType, p.SeedID, err)
	}
	return errorResponse(store.Errorf(store.RetCNotFound, "no seed of field %s reachable: %v", field, lastErr))
}

// call runs fn with a client for the Field of p. The path to p is dropped once
// its connections are gone, so the next call dials again. Failed requests on a
// live path keep it: other calls may be using it.
func (s *Seed) call(p passport.Passport, fn func(c *client.Client) error) error {
	c, err := s.peerClient(p)
	if err != nil {
		return err
	}
	err = fn(c)
	if errors.Is(err, transport.ErrConnClosed) || errors.Is(err, transport.ErrNoConnection) {
		s.dialer.Drop(p.RPCAddr)
	}
	return err
}

// execute runs a key operation of the local Field
func (s *Seed) execute(req *common.Message) *common.Message {
	if req.MsgType == common.MsgTSeedProof {
		proof, root, record, err := s.Prove(req.Key)
		if err != nil {
			return errorResponse(err)
		}
		return common.NewProofResponse(proof.Marshal(), root[:], record, nil)
	}
	if s.replica == nil {
		return s.adapter.Handle(req, s.store)
	}
	if req.MsgType.IsWrite() {
		return s.quorumWrite(req)
	}
	return s.quorumRead(req)
}

// handleSeedOp answers requests about the Seed itself
func (s *Seed) handleSeedOp(req *common.Message) *common.Message {
	switch req.MsgType {
	case common.MsgTSeedRoot:
		root, n, err := s.Root()
		return common.NewRootResponse(root[:], uint64(n), err)

	case common.MsgTSeedVerify:
		ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
		defer cancel()
		report, err := s.VerifyField(ctx)
		if err != nil {
			return common.NewVerifyResponse(nil, false, err)
		}
		b, err := json.Marshal(report)
		return common.NewVerifyResponse(b, report.Consistent, err)

	case common.MsgTSeedPassport:
		b, err := s.local.Marshal()
		return common.NewPassportResponse(b, err)

	case common.MsgTSeedMembers:
		members := append([]passport.Passport{s.local}, s.members.Peers()...)
		b, err := json.Marshal(members)
		return common.NewMembersResponse(b, err)

	default:
		return errorResponse(store.Errorf(store.RetCUnsupportedOperation, "unsupported message type: %s", req.MsgType))
	}
}
