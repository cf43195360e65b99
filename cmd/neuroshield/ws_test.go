package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// Concurrent broadcast rounds interleave WriteJSON and SetWriteDeadline on
// the same connection; the wrapper must serialize both to honor gorilla's
// one-concurrent-writer contract.
func TestWSConnSerializesWritesAndDeadlines(t *testing.T) {
	const writers, perWriter = 4, 10

	drained := make(chan int, 1)
	upgr := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgr.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		n := 0
		for n < writers*perWriter {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
			n++
		}
		drained <- n
	}))
	defer srv.Close()

	raw, _, err := websocket.DefaultDialer.Dial(
		"ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer raw.Close()

	conn := &wsConn{conn: raw}
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteJSON(map[string]any{"writer": w, "seq": i}); err != nil {
					t.Errorf("WriteJSON: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	select {
	case n := <-drained:
		require.Equal(t, writers*perWriter, n, "server must receive every frame intact")
	case <-time.After(5 * time.Second):
		t.Fatal("server never drained the written frames")
	}
}
