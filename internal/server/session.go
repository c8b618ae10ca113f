package server

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/shashank8104/voxrelay/internal/llm"
	"github.com/shashank8104/voxrelay/internal/turn"
)

const (
	defaultSessionInactivityTimeout = 60 * time.Second
	writeTimeout                    = 2 * time.Second
)

// Session owns one client connection end-to-end: the StateMachine,
// silence detection, voiced-audio accumulation, conversation memory, the
// inactivity watchdog, and the turn orchestrator. All of
// this state is owned exclusively by the Session; subtasks spawned for a
// turn never see the Session itself, only the narrow turn.Sink
// capability it implements below, never a back-pointer to the Session.
type Session struct {
	id   string
	conn *websocket.Conn

	writeMu sync.Mutex

	sm       *turn.StateMachine
	silence  *turn.SilenceDetector
	voiced   *turn.VoicedBuffer
	memory   *turn.ConversationMemory
	watchdog *turn.InactivityWatchdog
	orch     *turn.Orchestrator

	turnMu sync.Mutex
	cancel *turn.CancelToken

	ctx       context.Context
	cancelCtx context.CancelFunc
	closeOnce sync.Once
}

// NewSession wires a fresh Session around conn and the three external
// adapters, and immediately transitions IDLE -> USER_SPEAKING per the
// StateMachine's "session accepted" trigger. A zero inactivityTimeout
// falls back to defaultSessionInactivityTimeout.
func NewSession(conn *websocket.Conn, stt turn.STTClient, llmClient llm.Client, tts turn.TTSClient, params turn.SilenceParams, inactivityTimeout time.Duration) *Session {
	id := uuid.NewString()
	ctx, cancelCtx := context.WithCancel(context.Background())

	if inactivityTimeout <= 0 {
		inactivityTimeout = defaultSessionInactivityTimeout
	}

	s := &Session{
		id:        id,
		conn:      conn,
		sm:        turn.NewStateMachine(id),
		silence:   turn.NewSilenceDetector(params),
		voiced:    turn.NewVoicedBuffer(),
		memory:    turn.NewConversationMemory(),
		ctx:       ctx,
		cancelCtx: cancelCtx,
	}
	s.watchdog = turn.NewInactivityWatchdog(inactivityTimeout, s.onInactivityTimeout)
	s.orch = turn.NewOrchestrator(id, stt, llmClient, tts, s.memory, s.sm, s)

	s.sm.SetOnTransition(func(state turn.State) {
		if err := s.SendStatus(state.String()); err != nil {
			log.Printf("[session %s] status write failed: %v", id, err)
		}
	})
	s.sm.Transition(turn.StateUserSpeaking)

	return s
}

// ID returns the session's connection identity.
func (s *Session) ID() string { return s.id }

// HandleAudioFrame dispatches one inbound 20ms PCM frame according to the
// current state. The Gateway's read loop calls this
// synchronously; it may run concurrently with an in-flight turn's
// orchestrator goroutine, which only ever reaches back into the Session
// through the Sink methods below.
func (s *Session) HandleAudioFrame(frame []byte) {
	switch s.sm.Current() {
	case turn.StateUserSpeaking:
		s.handleUserSpeakingFrame(frame)
	case turn.StateAIProcessing, turn.StateAISpeaking:
		s.handleAIOutputFrame(frame)
	default:
		// IDLE: the Gateway transitions out of IDLE before the read loop
		// starts, so frames here would indicate a programmer error; ignore.
	}
}

func (s *Session) handleUserSpeakingFrame(frame []byte) {
	rms, turnEnd := s.silence.ProcessUserSpeaking(frame)
	capReached := s.voiced.Append(frame)

	if rms >= s.silence.Params().SilenceRMS {
		s.watchdog.Reset()
	}

	if turnEnd || capReached {
		s.startTurn()
	}
}

func (s *Session) handleAIOutputFrame(frame []byte) {
	_, bargeIn := s.silence.ProcessDuringAIOutput(frame)
	if !bargeIn {
		return
	}

	s.watchdog.Reset()

	s.turnMu.Lock()
	cancel := s.cancel
	s.turnMu.Unlock()
	if cancel != nil {
		cancel.Cancel()
	}

	// A fresh voiced buffer begins with the barge-in frame onward; the
	// orchestrator's own cancellation-path transition back to
	// USER_SPEAKING is a harmless no-op race against this one, since
	// StateMachine rejects the duplicate transition silently.
	s.voiced.Reset()
	s.voiced.Append(frame)
	s.silence.Reset()
	s.sm.Transition(turn.StateUserSpeaking)
}

func (s *Session) startTurn() {
	voicedAudio := s.voiced.Flush()
	s.silence.Reset()

	if !s.sm.Transition(turn.StateAIProcessing) {
		return
	}

	cancel := turn.NewCancelToken()
	s.turnMu.Lock()
	s.cancel = cancel
	s.turnMu.Unlock()

	go s.orch.RunTurn(s.ctx, voicedAudio, cancel)
}

// onInactivityTimeout fires after the session's inactivity timeout (60s
// by default) with no voiced frame and no
// assistant audio chunk: cancel any in-flight turn, announce
// TIMEOUT, and tear the connection down.
func (s *Session) onInactivityTimeout() {
	s.turnMu.Lock()
	cancel := s.cancel
	s.turnMu.Unlock()
	if cancel != nil {
		cancel.Cancel()
	}

	if err := s.SendStatus("TIMEOUT"); err != nil {
		log.Printf("[session %s] timeout status write failed: %v", s.id, err)
	}
	s.Close()
}

// Close tears the session down: stops the watchdog, cancels any in-flight
// turn's context, and closes the underlying connection. Safe to call more
// than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.watchdog.Stop()
		s.cancelCtx()
		_ = s.conn.Close()
	})
}

func (s *Session) writeJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *Session) writeBinary(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

// --- turn.Sink ---
//
// Every method here is the only surface the orchestrator and its
// subtasks ever touch on a Session; writes are serialized through
// writeMu so a control message is never interleaved mid-chunk with
// another message.

func (s *Session) SendStatus(state string) error {
	return s.writeJSON(newStatusMessage(state))
}

func (s *Session) SendTranscript(text string) error {
	return s.writeJSON(newTranscriptMessage(text))
}

func (s *Session) SendTTSText(text string, hasAudio bool) error {
	return s.writeJSON(newTTSTextMessage(text, hasAudio))
}

func (s *Session) SendAudioStart() error {
	return s.writeJSON(newAudioStartMessage())
}

func (s *Session) SendAudioChunk(data []byte) error {
	if err := s.writeBinary(data); err != nil {
		return err
	}
	// last-activity is also updated whenever assistant audio is emitted
	// too, not just on voiced inbound frames.
	s.watchdog.Reset()
	return nil
}

func (s *Session) SendAudioEnd() error {
	return s.writeJSON(newAudioEndMessage())
}

func (s *Session) SendInterrupt() error {
	return s.writeJSON(newInterruptMessage())
}

func (s *Session) SendError(message string) error {
	return s.writeJSON(newErrorMessage(message))
}

// SendPing is not part of turn.Sink; the Gateway's keepalive ticker calls
// it directly.
func (s *Session) SendPing() error {
	return s.writeJSON(newPingMessage())
}
