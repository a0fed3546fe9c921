// Package ws is the websocket host. It raises the lifecycle hooks the
// profile coordinator consumes: a bounded pre-connect gate, a connect hook
// that starts the load, and disconnect/kick hooks that trigger the urgent
// save and cleanup.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"emberhold.gg/internal/coordinator"
	"emberhold.gg/internal/protocol"
)

const (
	handshakeTimeout  = 5 * time.Second
	preConnectTimeout = 10 * time.Second
	readTimeout       = 60 * time.Second
	writeTimeout      = 5 * time.Second
)

type Server struct {
	coord *coordinator.Coordinator
	log   *zap.Logger
	motd  string

	upgrader websocket.Upgrader

	conns sync.Map // player id -> *clientConn
}

type clientConn struct {
	conn   *websocket.Conn
	forced atomic.Bool
}

func NewServer(coord *coordinator.Coordinator, motd string, logger *zap.Logger) *Server {
	return &Server{
		coord: coord,
		log:   logger,
		motd:  motd,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		playerID, ok := s.handshake(conn)
		if !ok {
			return
		}

		cc := &clientConn{conn: conn}
		s.conns.Store(playerID, cc)

		// Reader loop. The session lives for as long as reads succeed.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			if base.Type == protocol.TypeBye {
				break
			}
		}

		// Disconnect hook: urgent save + cleanup. A kick takes the
		// forced-disconnect path with its distinct outcome message.
		s.conns.Delete(playerID)
		s.coord.EndSession(playerID, cc.forced.Load())
	}
}

// handshake reads HELLO, runs the bounded pre-connect gate, and drives the
// load pipeline to completion before the client sees WELCOME.
func (s *Server) handshake(conn *websocket.Conn) (playerID string, ok bool) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		s.closePolicy(conn, "expected HELLO")
		return "", false
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", false
	}
	if hello.ProtocolVersion != protocol.Version {
		s.closePolicy(conn, "bad protocol_version")
		return "", false
	}
	if hello.PlayerName == "" {
		hello.PlayerName = "player"
	}
	playerID = hello.PlayerID
	if playerID == "" {
		playerID = uuid.NewString()
	}

	// Pre-connect gate: bounded, resolves one way or the other.
	preCtx, cancel := context.WithTimeout(context.Background(), preConnectTimeout)
	reason, admitted := s.coord.PreConnect(preCtx, playerID)
	cancel()
	if !admitted {
		s.writeJSON(conn, protocol.ErrorMsg{Type: protocol.TypeError, Reason: reason})
		return "", false
	}

	lc, err := s.coord.BeginLoad(playerID, hello.PlayerName)
	if err != nil {
		s.log.Warn("connect rejected", zap.String("id", playerID), zap.Error(err))
		s.writeJSON(conn, protocol.ErrorMsg{Type: protocol.TypeError, Reason: "connection rejected"})
		return "", false
	}

	p, open := <-lc.Result()
	if !open || p == nil {
		s.writeJSON(conn, protocol.ErrorMsg{Type: protocol.TypeError, Reason: "profile load failed"})
		return "", false
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		PlayerID:        p.ID,
		PlayerName:      p.Name,
		Rank:            p.State.Rank,
		FirstJoin:       p.Record.PlaytimeSecs == 0,
		MOTD:            s.motd,
	}
	if !s.writeJSON(conn, welcome) {
		s.coord.EndSession(playerID, false)
		return "", false
	}
	return playerID, true
}

// Kick force-disconnects a connected player. The reader loop then runs the
// forced-disconnect cleanup path.
func (s *Server) Kick(playerID, reason string) bool {
	v, ok := s.conns.Load(playerID)
	if !ok {
		return false
	}
	cc := v.(*clientConn)
	cc.forced.Store(true)
	s.writeJSON(cc.conn, protocol.KickMsg{Type: protocol.TypeKick, Reason: reason})
	_ = cc.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(writeTimeout))
	_ = cc.conn.Close()
	return true
}

func (s *Server) writeJSON(conn *websocket.Conn, v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		return false
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b) == nil
}

func (s *Server) closePolicy(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(time.Second))
}
