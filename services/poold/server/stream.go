package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"creditpool/core/events"
	"creditpool/storage/journal"
)

const (
	wsWriteTimeout      = 10 * time.Second
	defaultStreamBuffer = 64
	backlogPageSize     = 256
)

// Message is one event as delivered to stream and history clients. Sequence
// is the journal position and is zero when no journal is attached.
type Message struct {
	Sequence   uint64            `json:"sequence,omitempty"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	Time       time.Time         `json:"time"`
}

func messageFromEntry(entry journal.Entry) (Message, error) {
	attrs, err := entry.Decode()
	if err != nil {
		return Message{}, err
	}
	return Message{Sequence: entry.Sequence, Type: entry.Type, Attributes: attrs, Time: entry.CreatedAt}, nil
}

type subscriber struct {
	ch chan Message
}

// Hub journals ledger events and fans them out to websocket subscribers. It
// implements events.Emitter. Slow subscribers lose messages rather than
// stalling the ledger; they can recover them from the journal by sequence.
type Hub struct {
	mu      sync.Mutex
	journal *journal.Journal
	subs    map[*subscriber]struct{}
	buffer  int
	logger  *slog.Logger
	nowFn   func() time.Time
}

// NewHub returns a hub backed by j, which may be nil.
func NewHub(j *journal.Journal, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		journal: j,
		subs:    make(map[*subscriber]struct{}),
		buffer:  defaultStreamBuffer,
		logger:  logger,
		nowFn:   time.Now,
	}
}

// Emit implements events.Emitter.
func (h *Hub) Emit(evt events.Event) {
	if h == nil || evt == nil {
		return
	}
	rendered := events.Render(evt)
	msg := Message{Type: rendered.Type, Attributes: rendered.Attributes, Time: h.nowFn().UTC()}
	if h.journal != nil {
		entry, err := h.journal.Append(evt)
		if err != nil {
			h.logger.Error("journal append failed", "type", rendered.Type, "error", err)
		} else {
			msg.Sequence = entry.Sequence
			msg.Time = entry.CreatedAt
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.ch <- msg:
		default:
			h.logger.Warn("dropping event for slow subscriber", "type", msg.Type, "sequence", msg.Sequence)
		}
	}
}

// Subscribe registers a live listener. The returned function unregisters it
// and must be called exactly once.
func (h *Hub) Subscribe() (<-chan Message, func()) {
	sub := &subscriber{ch: make(chan Message, h.buffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub.ch, func() {
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()
	}
}

// Subscribers reports the number of live listeners.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// History returns up to limit journaled messages after sequence, oldest
// first. Without a journal it returns nothing.
func (h *Hub) History(after uint64, limit int) ([]Message, error) {
	if h.journal == nil {
		return nil, nil
	}
	entries, err := h.journal.Since(after, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(entries))
	for _, entry := range entries {
		msg, err := messageFromEntry(entry)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

// Latest returns up to limit journaled messages newest first, optionally
// restricted to one event type.
func (h *Hub) Latest(eventType string, limit int) ([]Message, error) {
	if h.journal == nil {
		return nil, nil
	}
	var (
		entries []journal.Entry
		err     error
	)
	if eventType != "" {
		entries, err = h.journal.ByType(eventType, limit)
	} else {
		entries, err = h.journal.Recent(limit)
	}
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(entries))
	for _, entry := range entries {
		msg, err := messageFromEntry(entry)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	after, replay, err := parseCursor(r.URL.Query().Get("after"))
	if err != nil {
		writeError(w, err)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.originPatterns})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	ctx := conn.CloseRead(r.Context())
	if err := s.stream(ctx, conn, after, replay); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			s.logger.Warn("event stream failed", "error", err)
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

// stream subscribes before replaying the journal so nothing emitted during
// the replay is missed; live messages already covered by the replay are
// skipped by sequence.
func (s *Server) stream(ctx context.Context, conn *websocket.Conn, after uint64, replay bool) error {
	updates, cancel := s.hub.Subscribe()
	defer cancel()

	cursor := after
	for replay {
		backlog, err := s.hub.History(cursor, backlogPageSize)
		if err != nil {
			return err
		}
		for _, msg := range backlog {
			if err := writeMessage(ctx, conn, msg); err != nil {
				return err
			}
			cursor = msg.Sequence
		}
		replay = len(backlog) == backlogPageSize
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-updates:
			if !ok {
				return nil
			}
			if msg.Sequence != 0 && msg.Sequence <= cursor {
				continue
			}
			if err := writeMessage(ctx, conn, msg); err != nil {
				return err
			}
			if msg.Sequence != 0 {
				cursor = msg.Sequence
			}
		}
	}
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

// parseCursor reads the after query parameter. An absent cursor means live
// events only.
func parseCursor(raw string) (uint64, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, badRequest("invalid cursor %q", raw)
	}
	return v, true, nil
}
