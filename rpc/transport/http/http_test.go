package http

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sphagnumdb/sphagnum/rpc/common"
)

func TestRoundTrip(t *testing.T) {
	server := &httpServerTransport{}
	server.RegisterHandler(func(shardId uint64, req []byte) []byte {
		return append(bytes.ToUpper(req), byte('0'+shardId))
	})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /{shardId}", server.handleRequest)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := NewHttpClientTransport()
	err := client.Connect(common.ClientConfig{
		Transport:     common.ClientTransportConfig{Endpoints: []string{strings.TrimPrefix(ts.URL, "http://")}},
		TimeoutSecond: 5,
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	resp, err := client.Send(3, []byte("abc"))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if string(resp) != "ABC3" {
		t.Errorf("got %q, want %q", resp, "ABC3")
	}
}

func TestInvalidShardID(t *testing.T) {
	server := &httpServerTransport{}
	server.RegisterHandler(func(uint64, []byte) []byte { return nil })

	mux := http.NewServeMux()
	mux.HandleFunc("POST /{shardId}", server.handleRequest)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/not-a-number", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestSendWithoutConnect(t *testing.T) {
	if _, err := NewHttpClientTransport().Send(1, nil); err == nil {
		t.Error("expected error")
	}
}
