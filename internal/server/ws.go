package server

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shashank8104/voxrelay/internal/llm"
	"github.com/shashank8104/voxrelay/internal/turn"
)

const keepaliveInterval = 25 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Adapters bundles the three external clients a connection's Session
// needs, plus its silence-detector thresholds and inactivity timeout. One
// instance is shared across all sessions; the
// adapters themselves are stateless HTTP clients, safe for concurrent use
// across every session.
type Adapters struct {
	STT turn.STTClient
	LLM llm.Client
	TTS turn.TTSClient

	SilenceParams  turn.SilenceParams
	SessionTimeout time.Duration
}

// registerWSRoute mounts the single /ws endpoint. Each upgraded
// connection gets its own Session; the read loop owns dispatch of binary
// audio frames into the Session and runs until the client disconnects or
// the Session is torn down (inactivity timeout, internal invariant
// failure).
func registerWSRoute(mux *http.ServeMux, adapters Adapters) {
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("ws upgrade error: %v", err)
			return
		}

		sess := NewSession(conn, adapters.STT, adapters.LLM, adapters.TTS, adapters.SilenceParams, adapters.SessionTimeout)
		defer sess.Close()

		stopKeepalive := make(chan struct{})
		go runKeepalive(sess, stopKeepalive)
		defer close(stopKeepalive)

		readLoop(sess, conn)
	})
}

func readLoop(sess *Session, conn *websocket.Conn) {
	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			sess.HandleAudioFrame(payload)
		case websocket.TextMessage:
			// Reserved for future client-initiated controls;
			// currently the client sends no text frames we act on.
		}
	}
}

// runKeepalive sends a lightweight ping every 25s to defeat intermediary
// idle-timeout proxies. It stops when stop is closed or the
// ping write itself fails (connection already gone).
func runKeepalive(sess *Session, stop <-chan struct{}) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := sess.SendPing(); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}
