package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nightcouncil/werewolf-server/internal/match"
	"github.com/nightcouncil/werewolf-server/internal/repository"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
	wsSendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hub fans stored events out to websocket subscribers, filtered per
// subscriber by event visibility. It is the engine's event sink.
type Hub struct {
	store repository.Store
	log   *zap.Logger

	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

type subscriber struct {
	conn     *websocket.Conn
	viewerID string
	send     chan []byte
}

// NewHub creates an empty hub. The store is consulted on publish to resolve
// wolf-channel visibility for each viewer.
func NewHub(store repository.Store, logger *zap.Logger) *Hub {
	return &Hub{
		store: store,
		log:   logger,
		subs:  make(map[string]map[*subscriber]struct{}),
	}
}

// Publish delivers the events to every subscriber of the match that may see
// them. A subscriber whose buffer is full is dropped rather than allowed to
// stall the rest.
func (h *Hub) Publish(matchID string, events []match.Event) {
	h.mu.Lock()
	empty := len(h.subs[matchID]) == 0
	h.mu.Unlock()
	if empty {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m, err := h.store.LoadMatch(ctx, matchID)
	if err != nil {
		h.log.Warn("publish load failed", zap.String("match_id", matchID), zap.Error(err))
		return
	}

	msgs := make([][]byte, len(events))
	for i, ev := range events {
		msg, err := json.Marshal(toEventView(ev))
		if err != nil {
			h.log.Error("event marshal failed", zap.String("event_id", ev.ID), zap.Error(err))
			continue
		}
		msgs[i] = msg
	}

	// Delivery happens under the lock so a concurrent unsubscribe cannot
	// close a channel mid-send.
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[matchID] {
		for i, ev := range events {
			if msgs[i] == nil || !ev.VisibleTo(m, sub.viewerID) {
				continue
			}
			select {
			case sub.send <- msgs[i]:
			default:
				h.log.Warn("slow websocket subscriber dropped",
					zap.String("match_id", matchID),
					zap.String("viewer", sub.viewerID),
				)
				h.removeLocked(matchID, sub)
			}
		}
	}
}

func (h *Hub) add(matchID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[matchID] == nil {
		h.subs[matchID] = make(map[*subscriber]struct{})
	}
	h.subs[matchID][sub] = struct{}{}
}

func (h *Hub) remove(matchID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(matchID, sub)
}

func (h *Hub) removeLocked(matchID string, sub *subscriber) {
	if set, ok := h.subs[matchID]; ok {
		if _, present := set[sub]; present {
			delete(set, sub)
			close(sub.send)
			if len(set) == 0 {
				delete(h.subs, matchID)
			}
		}
	}
}

// handleWebsocket upgrades the connection and streams match events to it
// until either side goes away. The viewer query parameter scopes visibility
// exactly as it does on the polling endpoints.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "id")
	viewerID := r.URL.Query().Get("viewer")

	if _, err := s.engine.State(r.Context(), matchID, "", false); err != nil {
		http.Error(w, "match not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sub := &subscriber{conn: conn, viewerID: viewerID, send: make(chan []byte, wsSendBuffer)}
	s.hub.add(matchID, sub)
	s.log.Debug("websocket subscribed",
		zap.String("match_id", matchID),
		zap.String("viewer", viewerID),
	)

	go s.writePump(matchID, sub)
	go s.readPump(matchID, sub)
}

func (s *Server) writePump(matchID string, sub *subscriber) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.hub.remove(matchID, sub)
				return
			}
		case <-ticker.C:
			sub.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.hub.remove(matchID, sub)
				return
			}
		}
	}
}

// readPump discards inbound frames; the stream is one-way. Its job is to
// notice the peer going away and unsubscribe.
func (s *Server) readPump(matchID string, sub *subscriber) {
	defer s.hub.remove(matchID, sub)
	sub.conn.SetReadLimit(512)
	sub.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	sub.conn.SetPongHandler(func(string) error {
		sub.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}
