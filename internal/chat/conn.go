package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	writeWait    = 10 * time.Second    // Time allowed to write a frame to the peer.
	pongWait     = 60 * time.Second    // Time allowed to read the next pong from the peer.
	pingPeriod   = (pongWait * 9) / 10 // Send pings with this period. Must be less than pongWait.
	maxFrameSize = 64 * 1024           // Maximum inbound frame size.
)

// session owns one accepted connection's lifetime: registry membership,
// the read and write pumps, and the cleanup that must run on every exit
// path.
type session struct {
	ws            *websocket.Conn
	conn          *Conn
	registry      *Registry
	router        *Router
	clientTimeout time.Duration
	log           *zap.Logger
}

// run registers the connection, drives both pumps and deregisters on the
// way out. The registry removal sits in a defer so it survives any exit:
// peer close, transport error, liveness timeout or a handler panic.
func (s *session) run(ctx context.Context) {
	s.registry.Insert(s.conn)
	defer s.registry.Remove(s.conn.ID())

	g, ctx := errgroup.WithContext(ctx)

	// Whichever pump exits first cancels the group context; closing the
	// socket here unblocks the other pump's pending read or write.
	g.Go(func() error {
		<-ctx.Done()
		return s.ws.Close()
	})
	g.Go(func() error { return s.readPump(ctx) })
	g.Go(func() error { return s.writePump(ctx) })

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.log.Debug("session ended",
			zap.String("conn_id", s.conn.ID()),
			zap.String("username", s.conn.Username()),
			zap.Error(err))
	}
	s.log.Info("connection closed",
		zap.String("conn_id", s.conn.ID()),
		zap.String("username", s.conn.Username()))
}

// readPump feeds inbound frames to the router, strictly in arrival
// order. A panic in a handler is contained to this session: it is
// converted into an error return so the normal cleanup runs.
func (s *session) readPump(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("panic while handling frame",
				zap.String("conn_id", s.conn.ID()),
				zap.String("username", s.conn.Username()),
				zap.Any("panic", p))
			err = fmt.Errorf("frame handler panic: %v", p)
		}
	}()

	s.ws.SetReadLimit(maxFrameSize)
	s.ws.SetReadDeadline(time.Now().Add(pongWait))
	s.ws.SetPongHandler(func(string) error {
		s.conn.Touch()
		return s.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, rerr := s.ws.ReadMessage()
		if rerr != nil {
			if websocket.IsUnexpectedCloseError(rerr, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Warn("read error",
					zap.String("username", s.conn.Username()),
					zap.Error(rerr))
			}
			return rerr
		}
		s.conn.Touch()
		s.ws.SetReadDeadline(time.Now().Add(pongWait))
		s.router.Handle(ctx, s.conn, raw)
	}
}

// writePump drains the outbound handle to the socket in arrival order
// and keeps the transport-level heartbeat going. It also enforces the
// liveness timeout: a peer silent for longer than clientTimeout is
// disconnected and cleaned up like any other exit.
func (s *session) writePump(ctx context.Context) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			s.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return ctx.Err()

		case frame := <-s.conn.outbound:
			s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return err
			}

		case <-ticker.C:
			if s.clientTimeout > 0 && s.conn.IdleFor() > s.clientTimeout {
				s.log.Warn("client timed out",
					zap.String("conn_id", s.conn.ID()),
					zap.String("username", s.conn.Username()))
				return errors.New("liveness timeout")
			}
			s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}
