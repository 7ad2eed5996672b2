// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/katzenpost/sigrelay/core/log"
)

type recorder struct {
	msgs     chan []byte
	statusCh chan bool
}

func newRecorder() *recorder {
	return &recorder{
		msgs:     make(chan []byte, 16),
		statusCh: make(chan bool, 16),
	}
}

func (r *recorder) HandleMessage(raw []byte) {
	r.msgs <- raw
}

func (r *recorder) HandleConnectionStatus(connected bool, err error) {
	r.statusCh <- connected
}

// echoServer greets every connection and echoes every frame back.
func echoServer(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"cmd":"connected"}`)); err != nil {
			return
		}
		for {
			mt, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(raw) == "hangup" {
				return
			}
			if err := conn.WriteMessage(mt, raw); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newTestGateway(t *testing.T, url string) *Websocket {
	backend, err := log.New("", "DEBUG", false)
	require.NoError(t, err)
	return NewWebsocket(&WebsocketConfig{
		URL:               url,
		KeepAliveInterval: time.Second,
		ConnectAttempts:   1,
	}, backend.GetLogger("transport"))
}

func receive(t *testing.T, ch <-chan []byte) string {
	select {
	case raw := <-ch:
		return string(raw)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a message")
	}
	return ""
}

func status(t *testing.T, ch <-chan bool) bool {
	select {
	case up := <-ch:
		return up
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a status change")
	}
	return false
}

func TestWebsocketRoundTrip(t *testing.T) {
	t.Parallel()
	srv := echoServer(t)
	defer srv.Close()

	gw := newTestGateway(t, wsURL(srv))
	rec := newRecorder()
	gw.SetHandler(rec)

	ctx := context.Background()
	require.ErrorIs(t, gw.Send(ctx, []byte("early")), ErrNotConnected)

	require.NoError(t, gw.Connect(ctx))
	require.True(t, gw.IsConnected())
	require.True(t, status(t, rec.statusCh))
	require.Equal(t, `{"cmd":"connected"}`, receive(t, rec.msgs))

	// Connecting again is a no-op.
	require.NoError(t, gw.Connect(ctx))

	require.NoError(t, gw.Send(ctx, []byte(`{"cmd":"auth_req"}`)))
	require.Equal(t, `{"cmd":"auth_req"}`, receive(t, rec.msgs))

	require.NoError(t, gw.Close())
	require.False(t, status(t, rec.statusCh))
	require.False(t, gw.IsConnected())
	require.ErrorIs(t, gw.Connect(ctx), ErrClosed)
	require.ErrorIs(t, gw.Send(ctx, []byte("late")), ErrClosed)
}

func TestWebsocketRemoteHangup(t *testing.T) {
	t.Parallel()
	srv := echoServer(t)
	defer srv.Close()

	gw := newTestGateway(t, wsURL(srv))
	defer gw.Close()
	rec := newRecorder()
	gw.SetHandler(rec)

	ctx := context.Background()
	require.NoError(t, gw.Connect(ctx))
	require.True(t, status(t, rec.statusCh))
	receive(t, rec.msgs)

	require.NoError(t, gw.Send(ctx, []byte("hangup")))
	require.False(t, status(t, rec.statusCh))
	require.False(t, gw.IsConnected())

	// The gateway can be reconnected after the relay drops it.
	require.NoError(t, gw.Connect(ctx))
	require.True(t, status(t, rec.statusCh))
	require.Equal(t, `{"cmd":"connected"}`, receive(t, rec.msgs))
}

func TestWebsocketConnectFailure(t *testing.T) {
	t.Parallel()
	srv := echoServer(t)
	url := wsURL(srv)
	srv.Close()

	gw := newTestGateway(t, url)
	defer gw.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Error(t, gw.Connect(ctx))
	require.False(t, gw.IsConnected())
}

func TestWebsocketConcurrentConnect(t *testing.T) {
	t.Parallel()
	srv := echoServer(t)
	defer srv.Close()

	gw := newTestGateway(t, wsURL(srv))
	defer gw.Close()
	rec := newRecorder()
	gw.SetHandler(rec)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- gw.Connect(context.Background())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.True(t, status(t, rec.statusCh))
	require.Equal(t, `{"cmd":"connected"}`, receive(t, rec.msgs))
	select {
	case <-rec.statusCh:
		t.Fatal("more than one connection was made")
	case <-time.After(100 * time.Millisecond):
	}
}
