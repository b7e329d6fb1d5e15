package client

import (
	"testing"
	"time"

	"github.com/sphagnumdb/sphagnum/lib/db"
	"github.com/sphagnumdb/sphagnum/lib/db/engines/moss"
	"github.com/sphagnumdb/sphagnum/lib/hlc"
	"github.com/sphagnumdb/sphagnum/lib/merkle"
	"github.com/sphagnumdb/sphagnum/lib/store"
	"github.com/sphagnumdb/sphagnum/lib/store/lstore"
	"github.com/sphagnumdb/sphagnum/rpc/common"
	"github.com/sphagnumdb/sphagnum/rpc/serializer"
	"github.com/sphagnumdb/sphagnum/rpc/server"
	"github.com/sphagnumdb/sphagnum/rpc/transport"
)

// loopback connects a client directly to the handler of a server transport
type loopback struct {
	handler transport.ServerHandleFunc
}

func (l *loopback) RegisterHandler(h transport.ServerHandleFunc) { l.handler = h }
func (l *loopback) Listen(common.ServerConfig) error             { return nil }
func (l *loopback) Connect(common.ClientConfig) error            { return nil }
func (l *loopback) Close() error                                 { return nil }
func (l *loopback) Send(shardId uint64, req []byte) ([]byte, error) {
	return l.handler(shardId, req), nil
}

func newTestClient(t *testing.T) (*Client, *server.RPCServer, *lstore.LocalStore) {
	t.Helper()
	lb := &loopback{}
	ser := serializer.NewBinarySerializer()
	srv := server.NewRPCServer(common.ServerConfig{}, lb, ser)

	st := lstore.NewLocalStore(func() db.KVDB {
		return moss.NewMossDB(&moss.DBOptions{NumShards: 2, TombstoneTTL: hlc.Ticks(time.Minute)})
	}, nil)
	t.Cleanup(func() { _ = st.Close() })
	srv.RegisterStore(0, st, server.NewIStoreServerAdapter())

	c, err := NewClient(common.ClientConfig{}, lb, ser)
	if err != nil {
		t.Fatal(err)
	}
	return c, srv, st
}

func TestClientStore(t *testing.T) {
	c, _, _ := newTestClient(t)

	if err := c.Set("a", []byte("moss")); err != nil {
		t.Fatal(err)
	}
	if n, err := c.Append("a", []byte("y")); err != nil || n != 5 {
		t.Errorf("Append() = %d, %v; want 5", n, err)
	}
	if v, ok, err := c.Get("a"); err != nil || !ok || string(v) != "mossy" {
		t.Errorf("Get() = %q, %v, %v", v, ok, err)
	}
	if err := c.SetE("b", []byte("x"), 0, 0); err != nil {
		t.Fatal(err)
	}
	if n, err := c.Exists("a", "b", "c", "a"); err != nil || n != 3 {
		t.Errorf("Exists() = %d, %v; want 3", n, err)
	}
	if n, err := c.Delete("a", "c"); err != nil || n != 1 {
		t.Errorf("Delete() = %d, %v; want 1", n, err)
	}
	if ok, err := c.Has("a"); err != nil || ok {
		t.Errorf("Has() = %v, %v after delete", ok, err)
	}
}

func TestClientErrors(t *testing.T) {
	c, _, _ := newTestClient(t)

	_, _, err := c.Root()
	if !store.IsCode(err, store.RetCUnsupportedOperation) {
		t.Errorf("got %v, want unsupported operation", err)
	}
	if err := c.Scan(func(db.Record) bool { return true }); !store.IsCode(err, store.RetCUnsupportedOperation) {
		t.Errorf("got %v, want unsupported operation", err)
	}
	if _, err := c.WithShard(99).Exists("a"); err == nil {
		t.Error("expected error for unknown shard")
	}
}

func TestClientPeerAndSeedOps(t *testing.T) {
	c, srv, st := newTestClient(t)
	for _, k := range []string{"a", "b", "c"} {
		if err := st.Set(k, []byte(k)); err != nil {
			t.Fatal(err)
		}
	}
	tree, err := merkle.Build(2, st.Scan)
	if err != nil {
		t.Fatal(err)
	}
	records := st.Lookup("a", "b", "c")

	srv.Register(7, func(req *common.Message) *common.Message {
		switch req.MsgType {
		case common.MsgTPeerDigest:
			root := tree.Root()
			return common.NewDigestResponse(root[:], uint64(tree.Len()), nil)
		case common.MsgTPeerLeaves:
			return common.NewLeavesResponse(EncodeLeaves(tree.Leaves()), uint64(tree.Depth()), nil)
		case common.MsgTPeerFetch:
			return common.NewFetchResponse(st.Lookup(req.Keys...), nil)
		case common.MsgTPeerReplicate:
			return common.NewReplicateResponse(uint64(len(req.Records)), nil)
		case common.MsgTSeedProof:
			root := tree.Root()
			recs := st.Lookup(req.Key)
			var rec *db.Record
			if len(recs) == 1 {
				rec = &recs[0]
			}
			return common.NewProofResponse(tree.Prove(req.Key).Marshal(), root[:], rec, nil)
		}
		return common.NewErrorResponse("unexpected")
	})
	peer := c.WithShard(7)

	root, n, err := peer.Digest()
	if err != nil || root != tree.Root() || n != 3 {
		t.Errorf("Digest() = %s, %d, %v", root, n, err)
	}
	leaves, err := peer.Leaves()
	if err != nil || len(leaves) != 4 {
		t.Fatalf("Leaves() = %d leaves, %v", len(leaves), err)
	}
	fetched, err := peer.Fetch("a", "missing")
	if err != nil || len(fetched) != 1 || fetched[0].Key != "a" {
		t.Errorf("Fetch() = %v, %v", fetched, err)
	}
	if applied, err := peer.Replicate(records); err != nil || applied != 3 {
		t.Errorf("Replicate() = %d, %v", applied, err)
	}

	proof, err := peer.Proof("b")
	if err != nil {
		t.Fatal(err)
	}
	if proof.Record == nil {
		t.Fatal("proof carries no record")
	}
	if err := proof.Verify("b"); err != nil {
		t.Errorf("Verify() = %v", err)
	}

	absent, err := peer.Proof("zzz")
	if err != nil {
		t.Fatal(err)
	}
	if absent.Record != nil {
		t.Fatal("unexpected record")
	}
	if err := absent.Verify("zzz"); err != nil {
		t.Errorf("Verify() = %v", err)
	}

	// a tampered record must not verify
	proof.Record.Value = []byte("forged")
	if err := proof.Verify("b"); err == nil {
		t.Error("tampered record verified")
	}
}

func TestLeavesCodec(t *testing.T) {
	leaves := []merkle.Hash{merkle.KeyHash("a"), merkle.KeyHash("b")}
	got, err := DecodeLeaves(EncodeLeaves(leaves), 1)
	if err != nil || got[0] != leaves[0] || got[1] != leaves[1] {
		t.Errorf("DecodeLeaves() = %v, %v", got, err)
	}
	if _, err := DecodeLeaves(EncodeLeaves(leaves), 2); err == nil {
		t.Error("expected error for wrong depth")
	}
}
