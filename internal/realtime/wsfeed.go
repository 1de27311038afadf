package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/matheus3301/chatsync/internal/chat"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// WSFeed is a Feed backed by the daemon's realtime WebSocket endpoint.
type WSFeed struct {
	url    string
	client *http.Client
	log    *zap.Logger
}

// NewWSFeed creates a feed dialing url (ws:// or wss://). client may be nil.
func NewWSFeed(url string, client *http.Client, log *zap.Logger) *WSFeed {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSFeed{url: url, client: client, log: log}
}

// UnixFeed creates a feed dialing the realtime endpoint on a Unix socket.
func UnixFeed(socketPath string, log *zap.Logger) *WSFeed {
	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
	}
	return NewWSFeed("ws://chatsync"+Path, client, log)
}

// Subscribe dials the endpoint and waits for the server's "subscribed"
// frame, so events inserted after Subscribe returns are not missed.
func (f *WSFeed) Subscribe(ctx context.Context) (Subscription, error) {
	c, _, err := websocket.Dial(ctx, f.url, &websocket.DialOptions{HTTPClient: f.client})
	if err != nil {
		return nil, fmt.Errorf("realtime dial: %w", err)
	}

	var env Envelope
	if err := wsjson.Read(ctx, c, &env); err != nil {
		_ = c.Close(websocket.StatusNormalClosure, "")
		return nil, fmt.Errorf("read subscribed frame: %w", err)
	}
	if env.Type != TypeSubscribed {
		_ = c.Close(websocket.StatusProtocolError, "")
		return nil, fmt.Errorf("expected %q, got %q", TypeSubscribed, env.Type)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	s := &wsSubscription{
		conn:   c,
		cancel: cancel,
		log:    f.log,
		events: make(chan chat.Message),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.readLoop(readCtx)
	return s, nil
}

type wsSubscription struct {
	conn   *websocket.Conn
	cancel context.CancelFunc
	log    *zap.Logger
	events chan chat.Message
	done   chan struct{}

	doneOnce  sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func (s *wsSubscription) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer s.doneOnce.Do(func() { close(s.done) })

	for {
		var env Envelope
		if err := wsjson.Read(ctx, s.conn, &env); err != nil {
			if ctx.Err() == nil {
				s.log.Info("realtime connection lost", zap.Error(err))
			}
			return
		}
		if env.Type != TypeMessageNew {
			continue
		}
		var p RowPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			s.log.Warn("bad realtime payload", zap.Error(err))
			continue
		}
		select {
		case s.events <- p.Row().Message():
		case <-ctx.Done():
			return
		}
	}
}

func (s *wsSubscription) Events() <-chan chat.Message { return s.events }
func (s *wsSubscription) Done() <-chan struct{}       { return s.done }

func (s *wsSubscription) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		_ = s.conn.Close(websocket.StatusNormalClosure, "")
		s.wg.Wait()
	})
	return nil
}
