// Command bot runs synthetic players against a server: each bot connects,
// completes the HELLO/WELCOME handshake, idles out a short session, says BYE,
// and reconnects with the same id. Useful for soaking the profile pipeline.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"emberhold.gg/internal/protocol"
)

func main() {
	var (
		url     = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		count   = flag.Int("count", 5, "number of concurrent bots")
		session = flag.Duration("session", 20*time.Second, "mean session length")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	var wg sync.WaitGroup
	for i := 0; i < *count; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			runBot(logger, *url, fmt.Sprintf("soakbot-%d", i), *session, stop)
		}()
	}
	wg.Wait()
}

// runBot is one player's connect/play/quit loop. The id is stable across
// reconnects so the server exercises the fetch path, not just first-create.
func runBot(logger *log.Logger, url, name string, session time.Duration, stop <-chan os.Signal) {
	id := uuid.NewString()
	for {
		select {
		case <-stop:
			return
		default:
		}
		if err := oneSession(logger, url, id, name, session, stop); err != nil {
			logger.Printf("%s: %v", name, err)
			select {
			case <-stop:
				return
			case <-time.After(2 * time.Second):
			}
		}
	}
}

func oneSession(logger *log.Logger, url, id, name string, session time.Duration, stop <-chan os.Signal) error {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerID:        id,
		PlayerName:      name,
	}
	if err := conn.WriteJSON(hello); err != nil {
		return fmt.Errorf("send HELLO: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	switch base.Type {
	case protocol.TypeWelcome:
		var w protocol.WelcomeMsg
		if err := json.Unmarshal(msg, &w); err != nil {
			return fmt.Errorf("decode WELCOME: %w", err)
		}
		logger.Printf("%s: WELCOME rank=%s first_join=%v", name, w.Rank, w.FirstJoin)
	case protocol.TypeError:
		return fmt.Errorf("rejected by server")
	default:
		return fmt.Errorf("unexpected %s", base.Type)
	}

	// Idle out the session, with some jitter so bots don't quit in lockstep.
	dwell := session/2 + time.Duration(rand.Int63n(int64(session)))
	select {
	case <-stop:
	case <-time.After(dwell):
	}

	_ = conn.WriteJSON(protocol.BaseMessage{Type: protocol.TypeBye})
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
		time.Now().Add(time.Second))
	logger.Printf("%s: session over after %s", name, dwell.Round(time.Second))
	return nil
}
