package Adhoc

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registry(t *testing.T, status int, got chan<- RegisterRequest) RegServerConfig {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/register", r.URL.Path)
		var req RegisterRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		select {
		case got <- req:
		default:
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(RegisterResponse{Id: req.Id, Success: status == http.StatusOK})
	}))
	t.Cleanup(srv.Close)
	host, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	var reg RegServerConfig
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	reg.SetAddress(host, p)
	return reg
}

func TestRegister(t *testing.T) {
	got := make(chan RegisterRequest, 1)
	reg := registry(t, http.StatusOK, got)
	node := Node{Id: "n1", IP: "10.0.0.2", Port: 8080, Backend: "dnn", Degraded: func() bool { return true }}

	resp, err := Register(context.Background(), resty.New(), reg, node)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "n1", resp.Id)

	req := <-got
	assert.Equal(t, "10.0.0.2", req.IP)
	assert.Equal(t, 8080, req.Port)
	assert.True(t, req.Degraded)
	assert.NotZero(t, req.TimeStamp)
}

func TestRegister_Errors(t *testing.T) {
	reg := registry(t, http.StatusInternalServerError, make(chan RegisterRequest, 1))
	_, err := Register(context.Background(), resty.New(), reg, Node{Id: "n1"})
	assert.Error(t, err)

	var down RegServerConfig
	down.SetAddress("127.0.0.1", 1)
	_, err = Register(context.Background(), resty.New().SetTimeout(200*time.Millisecond), down, Node{Id: "n1"})
	assert.Error(t, err)
}

func TestSendAliveMessage_RepeatsUntilCancelled(t *testing.T) {
	got := make(chan RegisterRequest, 16)
	reg := registry(t, http.StatusOK, got)
	var beats atomic.Int32
	done := make(chan struct{})
	go func() {
		for range got {
			if beats.Add(1) == 3 {
				close(done)
				return
			}
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go SendAliveMessage(ctx, &wg, reg, Node{Id: "n1"}, 20*time.Millisecond)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected three heartbeats")
	}
	cancel()
	wg.Wait()
}
