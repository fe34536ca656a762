// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package voice

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os/exec"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// =============================================================================
// AUDIO SOURCES
// =============================================================================

// AudioSource opens a stream of raw PCM audio (16kHz, 16-bit, mono).
type AudioSource func(ctx context.Context) (io.ReadCloser, error)

// CommandSource captures audio from an external recorder such as
// "arecord -q -f S16_LE -r 16000 -c 1 -t raw".
func CommandSource(argv []string) AudioSource {
	if len(argv) == 0 {
		return nil
	}
	return func(ctx context.Context) (io.ReadCloser, error) {
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		out, err := cmd.StdoutPipe()
		if err != nil {
			return nil, err
		}
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		return &commandReader{ReadCloser: out, cmd: cmd}, nil
	}
}

type commandReader struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (c *commandReader) Close() error {
	if c.cmd.Process != nil {
		c.cmd.Process.Kill()
	}
	c.ReadCloser.Close()
	c.cmd.Wait()
	return nil
}

// =============================================================================
// WEBSOCKET RECOGNIZER
// =============================================================================

// 16kHz * 16-bit * mono * 200ms
const defaultFrameSize = 6400

// WSConfig configures a WSRecognizer.
type WSConfig struct {
	URL       string
	Source    AudioSource
	FrameSize int
	Language  string
	Logger    *zap.Logger
}

// WSRecognizer streams microphone audio to a speech service over a
// websocket and reports the service's results.
//
// Outgoing frames are binary PCM. Incoming text frames are JSON:
//
//	{"type":"result","results":[{"transcript":"...","isFinal":true,"confidence":0.9}]}
//	{"type":"error","error":"network"}
type WSRecognizer struct {
	cfg    WSConfig
	dialer *websocket.Dialer
	log    *zap.Logger

	mu      sync.Mutex
	current *wsSession
}

type wsSession struct {
	conn   *websocket.Conn
	audio  io.ReadCloser
	cancel context.CancelFunc
	h      Handlers
	once   sync.Once

	writeMu sync.Mutex
}

type serverMessage struct {
	Type    string `json:"type"`
	Results []Slot `json:"results,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewWSRecognizer creates a recognizer. It is unsupported until both a URL
// and an audio source are configured.
func NewWSRecognizer(cfg WSConfig) *WSRecognizer {
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = defaultFrameSize
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &WSRecognizer{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		log: log.Named("speech"),
	}
}

// Supported implements Recognizer.
func (w *WSRecognizer) Supported() bool {
	return w.cfg.URL != "" && w.cfg.Source != nil
}

// Start implements Recognizer.
func (w *WSRecognizer) Start(h Handlers) error {
	if !w.Supported() {
		return ErrUnsupported
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current != nil {
		return errors.New("voice: recognition already running")
	}

	ctx, cancel := context.WithCancel(context.Background())

	header := http.Header{}
	if w.cfg.Language != "" {
		header.Set("Accept-Language", w.cfg.Language)
	}
	conn, _, err := w.dialer.DialContext(ctx, w.cfg.URL, header)
	if err != nil {
		cancel()
		return err
	}

	audio, err := w.cfg.Source(ctx)
	if err != nil {
		conn.Close()
		cancel()
		return err
	}

	s := &wsSession{conn: conn, audio: audio, cancel: cancel, h: h}
	w.current = s

	go w.sendAudio(s)
	go w.receive(s)
	return nil
}

// Stop implements Recognizer.
func (w *WSRecognizer) Stop() {
	w.mu.Lock()
	s := w.current
	w.mu.Unlock()
	if s == nil {
		return
	}
	w.end(s, "")
}

// sendAudio pumps audio frames until the source ends or the session closes.
func (w *WSRecognizer) sendAudio(s *wsSession) {
	buf := make([]byte, w.cfg.FrameSize)
	for {
		n, err := io.ReadFull(s.audio, buf)
		if n > 0 {
			s.writeMu.Lock()
			werr := s.conn.WriteMessage(websocket.BinaryMessage, buf[:n])
			s.writeMu.Unlock()
			if werr != nil {
				w.end(s, ErrKindNetwork)
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				// Tell the service no more audio is coming; results may still
				// follow.
				s.writeMu.Lock()
				s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"stop"}`))
				s.writeMu.Unlock()
			}
			return
		}
	}
}

// receive reads service messages until the connection closes.
func (w *WSRecognizer) receive(s *wsSession) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			kind := ""
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !isClosedConn(err) {
				w.log.Warn("speech connection failed", zap.Error(err))
				kind = ErrKindNetwork
			}
			w.end(s, kind)
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			w.log.Warn("malformed speech message", zap.Error(err))
			continue
		}

		switch msg.Type {
		case "result":
			if s.h.OnResult != nil && len(msg.Results) > 0 {
				s.h.OnResult(Result{Slots: msg.Results})
			}
		case "error":
			w.end(s, msg.Error)
			return
		case "end":
			w.end(s, "")
			return
		}
	}
}

// end tears down s and delivers OnError (when kind is set) and OnEnd once.
func (w *WSRecognizer) end(s *wsSession, kind string) {
	s.once.Do(func() {
		w.mu.Lock()
		if w.current == s {
			w.current = nil
		}
		w.mu.Unlock()

		s.cancel()
		s.audio.Close()
		s.writeMu.Lock()
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		s.conn.Close()

		if kind != "" && s.h.OnError != nil {
			s.h.OnError(kind)
		}
		if s.h.OnEnd != nil {
			s.h.OnEnd()
		}
	})
}

func isClosedConn(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
