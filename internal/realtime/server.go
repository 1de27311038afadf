package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Path is the HTTP path of the realtime endpoint.
const Path = "/realtime"

// Server streams message.inserted bus events to WebSocket clients. Each
// connection gets its own bus subscription, registered before the
// "subscribed" frame is sent.
type Server struct {
	bus    *bus.Bus
	log    *zap.Logger
	buffer int

	mu     sync.Mutex
	quit   chan struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewServer creates a realtime server publishing events from b.
func NewServer(b *bus.Bus, buffer int, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 256
	}
	return &Server{bus: b, log: log, buffer: buffer, quit: make(chan struct{})}
}

// Handler returns an http.Handler serving the realtime endpoint at Path.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(Path, s)
	return mux
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("realtime accept failed", zap.Error(err))
		return
	}

	ch, unsub := s.bus.Subscribe(bus.KindMessageInserted, s.buffer)
	defer unsub()

	ctx, cancel := context.WithCancel(c.CloseRead(r.Context()))
	defer cancel()
	go func() {
		select {
		case <-s.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := wsjson.Write(ctx, c, Envelope{Type: TypeSubscribed}); err != nil {
		_ = c.Close(websocket.StatusInternalError, "handshake failed")
		return
	}
	s.log.Debug("realtime client subscribed")

	for {
		select {
		case <-ctx.Done():
			_ = c.Close(websocket.StatusGoingAway, "")
			s.log.Debug("realtime client gone")
			return
		case evt := <-ch:
			row, ok := evt.Payload.(chat.Row)
			if !ok {
				continue
			}
			payload, err := json.Marshal(PayloadOf(row))
			if err != nil {
				s.log.Error("encode realtime payload", zap.Error(err))
				continue
			}
			if err := wsjson.Write(ctx, c, Envelope{Type: TypeMessageNew, Payload: payload}); err != nil {
				s.log.Debug("realtime write failed", zap.Error(err))
				_ = c.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

// Shutdown disconnects every client and waits for their handlers to return.
// Clients observe a connection loss.
func (s *Server) Shutdown() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.quit)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
