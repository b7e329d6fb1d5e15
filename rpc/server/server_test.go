package server

import (
	"testing"
	"time"

	"github.com/sphagnumdb/sphagnum/lib/db"
	"github.com/sphagnumdb/sphagnum/lib/db/engines/moss"
	"github.com/sphagnumdb/sphagnum/lib/hlc"
	"github.com/sphagnumdb/sphagnum/lib/store"
	"github.com/sphagnumdb/sphagnum/lib/store/lstore"
	"github.com/sphagnumdb/sphagnum/rpc/common"
	"github.com/sphagnumdb/sphagnum/rpc/serializer"
	"github.com/sphagnumdb/sphagnum/rpc/transport"
)

// nopTransport is a server transport that never receives anything
type nopTransport struct {
	handler transport.ServerHandleFunc
}

func (n *nopTransport) RegisterHandler(h transport.ServerHandleFunc) { n.handler = h }
func (n *nopTransport) Listen(common.ServerConfig) error             { return nil }
func (n *nopTransport) Close() error                                 { return nil }

func newTestServer(t *testing.T) (*RPCServer, *nopTransport, serializer.IRPCSerializer) {
	t.Helper()
	tr := &nopTransport{}
	ser := serializer.NewBinarySerializer()
	s := NewRPCServer(common.ServerConfig{}, tr, ser)

	st := lstore.NewLocalStore(func() db.KVDB {
		return moss.NewMossDB(&moss.DBOptions{NumShards: 2, TombstoneTTL: hlc.Ticks(time.Minute)})
	}, nil)
	t.Cleanup(func() { _ = st.Close() })
	s.RegisterStore(42, st, NewIStoreServerAdapter())
	return s, tr, ser
}

func call(t *testing.T, tr *nopTransport, ser serializer.IRPCSerializer, shardID uint64, req *common.Message) *common.Message {
	t.Helper()
	data, err := ser.Serialize(*req)
	if err != nil {
		t.Fatal(err)
	}
	var resp common.Message
	if err := ser.Deserialize(tr.handler(shardID, data), &resp); err != nil {
		t.Fatal(err)
	}
	return &resp
}

func TestStoreAdapter(t *testing.T) {
	_, tr, ser := newTestServer(t)

	tests := []struct {
		name  string
		req   *common.Message
		check func(t *testing.T, resp *common.Message)
	}{
		{"Set", common.NewSetRequest("a", []byte("1")), func(t *testing.T, resp *common.Message) {
			if resp.Err != "" || resp.MsgType != common.MsgTKVSet {
				t.Errorf("unexpected response %+v", resp)
			}
		}},
		{"Append", common.NewAppendRequest("a", []byte("23")), func(t *testing.T, resp *common.Message) {
			if resp.Count != 3 {
				t.Errorf("got length %d, want 3", resp.Count)
			}
		}},
		{"Get", common.NewGetRequest("a"), func(t *testing.T, resp *common.Message) {
			if !resp.Ok || string(resp.Value) != "123" {
				t.Errorf("got %q (ok=%v), want 123", resp.Value, resp.Ok)
			}
		}},
		{"SetNX", common.NewSetEIfUnsetRequest("a", []byte("x"), 0, 0), func(t *testing.T, resp *common.Message) {
			if resp.Err != "" {
				t.Errorf("unexpected error %s", resp.Err)
			}
		}},
		{"Exists", common.NewExistsRequest("a", "a", "missing"), func(t *testing.T, resp *common.Message) {
			if resp.Count != 2 {
				t.Errorf("got %d, want 2", resp.Count)
			}
		}},
		{"Expire", common.NewExpireRequest("a"), func(t *testing.T, resp *common.Message) {
			if resp.Err != "" {
				t.Errorf("unexpected error %s", resp.Err)
			}
		}},
		{"HasExpired", common.NewHasRequest("a"), func(t *testing.T, resp *common.Message) {
			if !resp.Ok {
				t.Error("expired key should still exist")
			}
		}},
		{"Delete", common.NewDeleteRequest("a", "missing"), func(t *testing.T, resp *common.Message) {
			if resp.Count != 1 {
				t.Errorf("got %d removed, want 1", resp.Count)
			}
		}},
		{"GetDeleted", common.NewGetRequest("a"), func(t *testing.T, resp *common.Message) {
			if resp.Ok {
				t.Error("deleted key was found")
			}
		}},
		{"Unsupported", common.NewRootRequest(), func(t *testing.T, resp *common.Message) {
			if resp.MsgType != common.MsgTError || !store.IsCode(store.ParseError(resp.Err), store.RetCUnsupportedOperation) {
				t.Errorf("unexpected response %+v", resp)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, call(t, tr, ser, 42, tt.req))
		})
	}
}

func TestUnknownShard(t *testing.T) {
	s, tr, ser := newTestServer(t)

	resp := call(t, tr, ser, 7, common.NewGetRequest("a"))
	if resp.MsgType != common.MsgTError {
		t.Errorf("got %s, want error", resp.MsgType)
	}

	s.Register(7, func(req *common.Message) *common.Message {
		return common.NewGetResponse([]byte(req.Key), true, nil)
	})
	resp = call(t, tr, ser, 7, common.NewGetRequest("echo"))
	if string(resp.Value) != "echo" {
		t.Errorf("got %q, want echo", resp.Value)
	}

	s.Unregister(7)
	if resp := call(t, tr, ser, 7, common.NewGetRequest("a")); resp.MsgType != common.MsgTError {
		t.Errorf("got %s after unregister, want error", resp.MsgType)
	}
}

func TestInvalidRequest(t *testing.T) {
	_, tr, ser := newTestServer(t)

	var resp common.Message
	if err := ser.Deserialize(tr.handler(42, []byte{1}), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.MsgType != common.MsgTError || resp.Err == "" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestKeys(t *testing.T) {
	if got := Keys(common.NewDeleteRequest("a", "b")); len(got) != 2 {
		t.Errorf("got %v", got)
	}
	if got := Keys(common.NewGetRequest("a")); len(got) != 1 || got[0] != "a" {
		t.Errorf("got %v", got)
	}
	if got := Keys(common.NewRootRequest()); got != nil {
		t.Errorf("got %v", got)
	}
}
