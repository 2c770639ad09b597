package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/propertyhub/leadvoice/internal/conversation"
	"github.com/propertyhub/leadvoice/internal/observability"
	"github.com/propertyhub/leadvoice/internal/reliability"
)

// event is the telephony media-stream envelope, both directions.
type event struct {
	Event string `json:"event"`
	Start *struct {
		CallSID   string `json:"call_sid"`
		StreamSID string `json:"stream_sid"`
		From      string `json:"from"`
		To        string `json:"to"`
	} `json:"start,omitempty"`
	Media *struct {
		Payload string `json:"payload"`
	} `json:"media,omitempty"`
	DTMF *struct {
		Digit string `json:"digit"`
	} `json:"dtmf,omitempty"`
	CustomField string `json:"customField,omitempty"`
	// StreamSid is set on outbound frames only.
	StreamSid string `json:"streamSid,omitempty"`
}

// wsSender serializes writes; the speaking goroutine and the read loop
// may both emit frames.
type wsSender struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (s *wsSender) SendMedia(streamSID, payload string) error {
	frame := event{Event: "media", StreamSid: streamSID}
	frame.Media = &struct {
		Payload string `json:"payload"`
	}{Payload: payload}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws.WriteJSON(frame)
}

// Gateway owns the telephony websocket endpoint and routes events into
// the conversation manager.
type Gateway struct {
	manager  *conversation.Manager
	metrics  *observability.Metrics
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*wsSender
}

func New(manager *conversation.Manager, metrics *observability.Metrics, logger *slog.Logger) *Gateway {
	return &Gateway{
		manager: manager,
		metrics: metrics,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			// The telephony provider connects server to server.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[string]*wsSender),
	}
}

// HandleWS upgrades the connection and runs the per-call event loop
// until stop or disconnect.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	g.metrics.WebsocketConnections.Inc()
	defer g.metrics.WebsocketConnections.Dec()

	sender := &wsSender{ws: ws}
	ctx := r.Context()
	callSID := ""

	defer func() {
		if callSID != "" {
			g.mu.Lock()
			delete(g.conns, callSID)
			g.mu.Unlock()
			// Disconnect without a stop frame still finalizes the call.
			g.manager.Stop(context.Background(), callSID)
		}
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.logger.Warn("websocket read failed", "call_sid", callSID, "error", err)
			}
			return
		}

		var ev event
		if err := json.Unmarshal(raw, &ev); err != nil {
			g.metrics.CountError(string(reliability.KindGatewayProtocol), "gateway")
			g.logger.Warn("unparseable websocket frame", "call_sid", callSID, "error", err)
			continue
		}

		switch ev.Event {
		case "connected":
			// Acknowledge only; the start frame carries the call identity.

		case "start":
			if ev.Start == nil || ev.Start.CallSID == "" {
				g.metrics.CountError(string(reliability.KindGatewayProtocol), "gateway")
				g.logger.Warn("start frame missing call identity")
				continue
			}
			callSID = ev.Start.CallSID
			g.mu.Lock()
			g.conns[callSID] = sender
			g.mu.Unlock()
			g.manager.Start(ctx, conversation.StartEvent{
				CallSID:     ev.Start.CallSID,
				StreamSID:   ev.Start.StreamSID,
				From:        ev.Start.From,
				To:          ev.Start.To,
				CustomField: ev.CustomField,
			}, sender)

		case "media":
			if callSID == "" || ev.Media == nil {
				continue
			}
			g.manager.Media(ctx, callSID, ev.Media.Payload)

		case "stop":
			if callSID != "" {
				g.manager.Stop(ctx, callSID)
			}
			return

		case "clear":
			if callSID != "" {
				g.manager.Clear(ctx, callSID)
			}

		case "dtmf":
			if callSID != "" && ev.DTMF != nil {
				g.manager.DTMF(ctx, callSID, ev.DTMF.Digit)
			}

		default:
			g.logger.Debug("unknown websocket event ignored", "event", ev.Event)
		}
	}
}

// ActiveConnections reports how many call websockets are open.
func (g *Gateway) ActiveConnections() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}
