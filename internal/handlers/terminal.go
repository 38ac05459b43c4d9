package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/hostdeck/hostdeck/internal/logutil"
	"github.com/hostdeck/hostdeck/internal/termsession"
)

// terminalRateLimit defines the maximum number of messages allowed per
// second per WebSocket connection. Messages beyond this rate are dropped.
const terminalRateLimit = 200

// terminalRateBurst is the token bucket burst size, allowing short bursts
// of rapid input (e.g., paste operations) before rate limiting kicks in.
const terminalRateBurst = 200

// termControlMsg is a text-frame control message from the client. Binary
// frames carry raw terminal input and need no envelope.
type termControlMsg struct {
	Type    string `json:"type"`
	Cols    uint16 `json:"cols,omitempty"`
	Rows    uint16 `json:"rows,omitempty"`
	Command string `json:"command,omitempty"`
}

// TerminalWS handles the WebSocket for one interactive terminal session.
//
// Query parameters:
//   - cols, rows: initial PTY size (defaults 80x24).
//   - user: identity fallback for clients that cannot set headers.
//
// Binary frames are raw terminal data. Text frames are JSON control
// messages: {"type":"resize","cols":N,"rows":N} and
// {"type":"command","command":"..."}. Outbound traffic is binary terminal
// data plus JSON {"type":"error"|"closed"} notifications.
func TerminalWS(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Missing user identity")
		return
	}

	name := chi.URLParam(r, "name")
	host, ok := Hosts.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "Host not found")
		return
	}

	clientConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("Failed to accept terminal websocket: %v", err)
		return
	}
	defer clientConn.CloseNow()

	ctx := r.Context()
	size := ptySizeFromQuery(r)

	ep := &wsEndpoint{conn: clientConn, ctx: ctx}
	s, err := Sessions.OpenSession(ctx, userID, name, host.Identity(), host.Credential(), size, ep)
	if err != nil {
		log.Printf("Terminal session open failed for %s: %v", logutil.SanitizeForLog(name), err)
		clientConn.Close(4500, "Failed to open session")
		return
	}

	log.Printf("Terminal session started: session=%s host=%s user=%s",
		s.ID, logutil.SanitizeForLog(name), logutil.SanitizeForLog(userID))

	// The WebSocket dropping is the transport-disconnect path; it must end
	// the session so the pool lease is returned.
	defer Sessions.CloseSession(s.ID, "client disconnected")

	clientConn.SetReadLimit(1024 * 1024)

	limiter := newTokenBucket(terminalRateBurst, terminalRateLimit)

	for {
		msgType, data, err := clientConn.Read(ctx)
		if err != nil {
			return
		}

		// Rate limit: drop messages that exceed the allowed rate
		if !limiter.allow() {
			continue
		}

		if msgType == websocket.MessageBinary {
			if len(data) > termsession.MaxInputMessageSize {
				log.Printf("Terminal input message too large: session=%s size=%d limit=%d",
					s.ID, len(data), termsession.MaxInputMessageSize)
				continue
			}
			Sessions.OnClientData(s.ID, data)
			continue
		}

		var msg termControlMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "resize":
			if msg.Cols > 0 && msg.Rows > 0 {
				Sessions.OnClientResize(s.ID, termsession.PTYSize{Cols: msg.Cols, Rows: msg.Rows})
			}
		case "command":
			if msg.Command != "" {
				Sessions.OnClientCommand(s.ID, msg.Command)
			}
		}
	}
}

// ptySizeFromQuery parses the initial terminal size from query parameters.
func ptySizeFromQuery(r *http.Request) termsession.PTYSize {
	var size termsession.PTYSize
	if cols, err := strconv.ParseUint(r.URL.Query().Get("cols"), 10, 16); err == nil {
		size.Cols = uint16(cols)
	}
	if rows, err := strconv.ParseUint(r.URL.Query().Get("rows"), 10, 16); err == nil {
		size.Rows = uint16(rows)
	}
	return size.Clamp()
}

// wsEndpoint adapts a WebSocket connection to the session manager's
// endpoint contract. Writes are serialized: remote output and lifecycle
// notifications come from different goroutines.
type wsEndpoint struct {
	conn *websocket.Conn
	ctx  context.Context
	mu   sync.Mutex
}

func (ep *wsEndpoint) SendData(data []byte) error {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return ep.conn.Write(ep.ctx, websocket.MessageBinary, data)
}

func (ep *wsEndpoint) SendError(msg string) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	payload, _ := json.Marshal(map[string]string{"type": "error", "message": msg})
	ep.conn.Write(ep.ctx, websocket.MessageText, payload)
}

func (ep *wsEndpoint) SendClosed(reason string) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	payload, _ := json.Marshal(map[string]string{"type": "closed", "reason": reason})
	ep.conn.Write(ep.ctx, websocket.MessageText, payload)
	ep.conn.Close(websocket.StatusNormalClosure, reason)
}

// tokenBucket implements a simple token bucket rate limiter for terminal
// messages. Tokens accrue fractionally so rapid sub-millisecond arrivals
// still refill at the configured rate instead of starving the bucket.
type tokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens added per second
	lastRefill time.Time
}

func newTokenBucket(maxTokens, refillRate int) *tokenBucket {
	return &tokenBucket{
		tokens:     float64(maxTokens),
		maxTokens:  float64(maxTokens),
		refillRate: float64(refillRate),
		lastRefill: time.Now(),
	}
}

// allow checks if a message is allowed and consumes a token.
func (tb *tokenBucket) allow() bool {
	now := time.Now()
	tb.tokens += now.Sub(tb.lastRefill).Seconds() * tb.refillRate
	tb.lastRefill = now
	if tb.tokens > tb.maxTokens {
		tb.tokens = tb.maxTokens
	}

	if tb.tokens < 1 {
		return false
	}
	tb.tokens--
	return true
}
