package http

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sphagnumdb/sphagnum/rpc/common"
	"github.com/sphagnumdb/sphagnum/rpc/transport"
)

func NewHttpClientTransport() transport.IRPCClientTransport {
	return &httpClientTransport{}
}

type httpClientTransport struct {
	serverURLs []*url.URL
	client     *http.Client
	counter    uint32
	retryCount int
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *httpClientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}

	parsedURLs := make([]*url.URL, len(config.Transport.Endpoints))
	for i, server := range config.Transport.Endpoints {
		if !strings.Contains(server, "://") {
			server = "http://" + server
		}
		parsedURL, err := url.Parse(server)
		if err != nil {
			return err
		}
		parsedURLs[i] = parsedURL
	}

	t.client = &http.Client{
		Timeout: config.Timeout(),
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: max(10, config.Transport.ConnectionsPerEndpoint),
			IdleConnTimeout:     90 * time.Second,
		},
	}
	t.serverURLs = parsedURLs
	t.counter = 0
	t.retryCount = max(1, config.Transport.RetryCount)

	return nil
}

func (t *httpClientTransport) Send(shardId uint64, req []byte) (resp []byte, err error) {
	if t.client == nil {
		return nil, fmt.Errorf("http transport not initialized")
	}

	// Select the next server via round-robin
	idx := atomic.AddUint32(&t.counter, 1) % uint32(len(t.serverURLs))
	requestURL := fmt.Sprintf("%s/%d", strings.TrimSuffix(t.serverURLs[idx].String(), "/"), shardId)

	var httpResponse *http.Response
	for i := 0; i < t.retryCount; i++ {
		// a request body can only be read once, so every attempt needs a new request
		var httpRequest *http.Request
		httpRequest, err = http.NewRequest(http.MethodPost, requestURL, bytes.NewReader(req))
		if err != nil {
			return nil, err
		}
		httpResponse, err = t.client.Do(httpRequest)
		if err == nil {
			break
		}
		Logger.Debugf("Request attempt %d/%d to %s failed: %v", i+1, t.retryCount, requestURL, err)
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := httpResponse.Body.Close(); err != nil {
			Logger.Errorf("Failed to close response body: %v", err)
		}
	}()

	if httpResponse.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http error: %s", httpResponse.Status)
	}

	return io.ReadAll(httpResponse.Body)
}

func (t *httpClientTransport) Close() error {
	if t.client != nil {
		t.client.CloseIdleConnections()
	}
	t.client = nil
	t.serverURLs = nil
	return nil
}
