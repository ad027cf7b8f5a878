package broadcast

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// ServeWS upgrades the request and joins the peer to the channel until either side closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	p := &peer{id: uuid.NewString(), hub: h, conn: conn}
	h.logger.Info("broadcast peer joined", "channel", h.name, "peer", p.id, "remote", r.RemoteAddr)
	p.run(r.Context())
	h.logger.Info("broadcast peer left", "channel", h.name, "peer", p.id)
}

type peer struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (p *peer) run(ctx context.Context) {
	defer p.conn.Close()

	sub, err := p.hub.subscribe(p.id, func(msg Message) {
		if err := p.write(websocket.TextMessage, msg); err != nil {
			p.hub.logger.Debug("websocket write failed", "peer", p.id, "error", err)
			_ = p.conn.Close()
		}
	})
	if err != nil {
		_ = p.write(websocket.CloseMessage, nil)
		return
	}
	defer sub.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return p.readLoop()
	})
	g.Go(func() error {
		return p.pingLoop(ctx, sub.done)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		p.hub.logger.Debug("broadcast peer stopped", "peer", p.id, "error", err)
	}
}

// readLoop forwards valid STATS_UPDATE frames from the peer into the hub.
func (p *peer) readLoop() error {
	p.conn.SetReadLimit(maxMessageSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return err
			}
			return nil
		}

		msg, err := ParseMessage(data)
		if err != nil {
			p.hub.logger.Debug("ignoring malformed frame", "peer", p.id, "error", err)
			continue
		}
		if _, err := msg.Record(); err != nil {
			p.hub.logger.Debug("ignoring broadcast message", "peer", p.id, "type", msg.Type, "error", err)
			continue
		}
		msg.Origin = p.id
		if err := p.hub.deliver(msg); err != nil {
			return err
		}
	}
}

// pingLoop keeps the connection alive and closes it when the subscription ends.
func (p *peer) pingLoop(ctx context.Context, subDone <-chan struct{}) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.conn.Close()
			return nil
		case <-subDone:
			_ = p.write(websocket.CloseMessage, nil)
			_ = p.conn.Close()
			return nil
		case <-ticker.C:
			if err := p.write(websocket.PingMessage, nil); err != nil {
				_ = p.conn.Close()
				return err
			}
		}
	}
}

func (p *peer) write(messageType int, msg any) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()

	_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	switch messageType {
	case websocket.TextMessage:
		return p.conn.WriteJSON(msg)
	case websocket.CloseMessage:
		return p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	default:
		return p.conn.WriteMessage(messageType, nil)
	}
}
