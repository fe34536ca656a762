// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package voice

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticSource(data []byte) AudioSource {
	return func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
}

// blockingSource never yields audio until closed.
type blockingSource struct {
	once sync.Once
	done chan struct{}
}

func (b *blockingSource) Read([]byte) (int, error) {
	<-b.done
	return 0, io.EOF
}

func (b *blockingSource) Close() error {
	b.once.Do(func() { close(b.done) })
	return nil
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// speechServer counts audio bytes and replies with the given messages once
// the client sends its stop frame.
func speechServer(t *testing.T, replies []string, received *atomic.Int64) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.BinaryMessage {
				received.Add(int64(len(data)))
				continue
			}
			for _, reply := range replies {
				if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWSRecognizerSupported(t *testing.T) {
	assert.False(t, NewWSRecognizer(WSConfig{}).Supported())
	assert.False(t, NewWSRecognizer(WSConfig{URL: "ws://x"}).Supported())
	assert.True(t, NewWSRecognizer(WSConfig{URL: "ws://x", Source: staticSource(nil)}).Supported())

	err := NewWSRecognizer(WSConfig{}).Start(Handlers{})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestWSRecognizerStreamsAudioAndResults(t *testing.T) {
	var received atomic.Int64
	srv := speechServer(t, []string{
		`{"type":"result","results":[{"transcript":"hel","isFinal":false}]}`,
		`not json`,
		`{"type":"result","results":[{"transcript":"hello","isFinal":true,"confidence":0.92}]}`,
		`{"type":"end"}`,
	}, &received)

	audio := bytes.Repeat([]byte{1}, 1000)
	w := NewWSRecognizer(WSConfig{URL: wsURL(srv), Source: staticSource(audio), FrameSize: 300})

	var (
		mu      sync.Mutex
		results []Result
		ends    int
	)
	ended := make(chan struct{})
	require.NoError(t, w.Start(Handlers{
		OnResult: func(r Result) {
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		},
		OnError: func(kind string) { t.Errorf("unexpected error %q", kind) },
		OnEnd: func() {
			mu.Lock()
			ends++
			mu.Unlock()
			close(ended)
		},
	}))

	select {
	case <-ended:
	case <-time.After(5 * time.Second):
		t.Fatal("recognizer never ended")
	}

	w.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, results, 2)
	assert.Equal(t, "hel", results[0].Slots[0].Transcript)
	assert.True(t, results[1].Slots[0].Final)
	assert.InDelta(t, 0.92, results[1].Slots[0].Confidence, 1e-9)
	assert.Equal(t, 1, ends)
	assert.Equal(t, int64(len(audio)), received.Load())
}

func TestWSRecognizerErrorMessage(t *testing.T) {
	var received atomic.Int64
	srv := speechServer(t, []string{`{"type":"error","error":"not-allowed"}`}, &received)

	w := NewWSRecognizer(WSConfig{URL: wsURL(srv), Source: staticSource([]byte{1, 2})})

	var kinds []string
	ended := make(chan struct{})
	require.NoError(t, w.Start(Handlers{
		OnError: func(kind string) { kinds = append(kinds, kind) },
		OnEnd:   func() { close(ended) },
	}))

	select {
	case <-ended:
	case <-time.After(5 * time.Second):
		t.Fatal("recognizer never ended")
	}
	assert.Equal(t, []string{ErrKindNotAllowed}, kinds)
}

func TestWSRecognizerStopEndsOnce(t *testing.T) {
	var received atomic.Int64
	srv := speechServer(t, nil, &received)
	src := &blockingSource{done: make(chan struct{})}
	w := NewWSRecognizer(WSConfig{
		URL:    wsURL(srv),
		Source: func(context.Context) (io.ReadCloser, error) { return src, nil },
	})

	var mu sync.Mutex
	ends := 0
	require.NoError(t, w.Start(Handlers{OnEnd: func() {
		mu.Lock()
		ends++
		mu.Unlock()
	}}))

	w.Stop()
	w.Stop()
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, 1, ends)
	mu.Unlock()

	// A new session can start after the previous one ended.
	src2 := &blockingSource{done: make(chan struct{})}
	w.cfg.Source = func(context.Context) (io.ReadCloser, error) { return src2, nil }
	require.NoError(t, w.Start(Handlers{}))
	w.Stop()
}

func TestWSRecognizerDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	w := NewWSRecognizer(WSConfig{URL: wsURL(srv), Source: staticSource(nil)})
	assert.Error(t, w.Start(Handlers{}))
}

func TestReconcilerOverWebsocket(t *testing.T) {
	var received atomic.Int64
	srv := speechServer(t, []string{
		`{"type":"result","results":[{"transcript":"show pricing","isFinal":true,"confidence":0.8}]}`,
		`{"type":"end"}`,
	}, &received)

	w := NewWSRecognizer(WSConfig{URL: wsURL(srv), Source: staticSource([]byte{0, 0, 0, 0})})
	r := NewReconciler(w)

	require.NoError(t, r.Start("please"))
	deadline := time.After(5 * time.Second)
	for r.Listening() {
		select {
		case <-r.Changes():
		case <-deadline:
			t.Fatal("reconciler still listening")
		}
	}
	assert.Equal(t, "please show pricing", r.State().Value)
}
