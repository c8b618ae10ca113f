package turn

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/shashank8104/voxrelay/internal/llm"
)

const (
	sentenceQueueCap   = 8
	sttTimeout         = 15 * time.Second
	llmFirstTokenGrace = 10 * time.Second
	llmTotalTimeout    = 30 * time.Second
	ttsSentenceTimeout = 20 * time.Second
	cancelGrace        = 200 * time.Millisecond

	fallbackUtterance = "Sorry, I didn't catch that."
)

// Sink is the narrow, send-only capability a turn's subtasks use to
// reach the client connection. It deliberately excludes any way to read
// from the connection or reach back into the owning Session, per the
// cyclic-reference note: subtasks get a sink and a cancellation
// observer, never a Session back-pointer.
type Sink interface {
	// SendStatus takes the wire-level state name directly (State.String()
	// for an ordinary transition, or the literal "TIMEOUT") rather than a
	// State value, since TIMEOUT is a wire-only status with no
	// corresponding StateMachine state.
	SendStatus(state string) error
	SendTranscript(text string) error
	SendTTSText(text string, hasAudio bool) error
	SendAudioStart() error
	SendAudioChunk(data []byte) error
	SendAudioEnd() error
	SendInterrupt() error
	SendError(message string) error
}

// STTClient transcribes a voiced buffer. Implementations are expected to
// already fold in any vendor-level empty-transcript retry (e.g.
// stt.Client.TranscribeWithRetry) — the orchestrator's own retry policy
// below is a separate, error-only retry contract.
type STTClient interface {
	Transcribe(ctx context.Context, pcm []byte) (string, error)
}

// TranscribeFunc adapts a plain function to STTClient.
type TranscribeFunc func(ctx context.Context, pcm []byte) (string, error)

func (f TranscribeFunc) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	return f(ctx, pcm)
}

// TTSChunk is one unit of synthesized audio, or a terminal error.
type TTSChunk struct {
	Data []byte
	Err  error
}

// TTSClient synthesizes one sentence at a time into a stream of audio
// chunks.
type TTSClient interface {
	Stream(ctx context.Context, text string) (<-chan TTSChunk, error)
}

// cancelAwareContext derives a context that is canceled either when
// parent is done or when cancel fires, so a blocking network call
// (STT/LLM/TTS HTTP request) observes barge-in promptly instead of only
// at its next queue suspension point. The returned stop func must be
// called to release the watcher goroutine once the derived context is
// no longer needed.
func cancelAwareContext(parent context.Context, cancel *CancelToken) (context.Context, func()) {
	ctx, cancelFn := context.WithCancel(parent)
	stop := make(chan struct{})
	go func() {
		select {
		case <-cancel.Done():
			cancelFn()
		case <-stop:
		}
	}()
	return ctx, func() {
		close(stop)
		cancelFn()
	}
}

// Orchestrator runs one turn (STT -> LLM -> TTS) to completion or
// cancellation. A new Orchestrator is not required per turn; the same
// instance runs turns serially, one at a time, for a Session's lifetime.
type Orchestrator struct {
	sessionID string
	stt       STTClient
	llm       llm.Client
	tts       TTSClient
	memory    *ConversationMemory
	sm        *StateMachine
	sink      Sink
}

// NewOrchestrator wires the three external adapters and the Session's
// shared StateMachine/ConversationMemory/Sink into a turn runner.
func NewOrchestrator(sessionID string, stt STTClient, llmClient llm.Client, tts TTSClient, memory *ConversationMemory, sm *StateMachine, sink Sink) *Orchestrator {
	return &Orchestrator{
		sessionID: sessionID,
		stt:       stt,
		llm:       llmClient,
		tts:       tts,
		memory:    memory,
		sm:        sm,
		sink:      sink,
	}
}

// RunTurn drives one full turn synchronously from the voiced buffer
// through to the next USER_SPEAKING state. Callers run it in its own
// goroutine and trigger barge-in by calling cancel.Cancel() concurrently.
func (o *Orchestrator) RunTurn(ctx context.Context, voiced []byte, cancel *CancelToken) {
	cancel.OnCancel(func() {
		log.Printf("[session %s] barge-in: cancelling active turn", o.sessionID)
		if err := o.sink.SendInterrupt(); err != nil {
			log.Printf("[session %s] failed to send interrupt: %v", o.sessionID, err)
		}
	})

	cancelAwareCtx, stopWatch := cancelAwareContext(ctx, cancel)
	sttCtx, cancelSTT := context.WithTimeout(cancelAwareCtx, sttTimeout)
	transcript, err := o.transcribeWithRetry(sttCtx, voiced)
	cancelSTT()
	stopWatch()

	if cancel.Canceled() {
		o.sm.Transition(StateUserSpeaking)
		return
	}

	if err != nil {
		log.Printf("[session %s] STT failed twice, falling back: %v", o.sessionID, err)
		o.runFallbackTurn(ctx, cancel, fallbackUtterance)
		return
	}

	if transcript == "" {
		log.Printf("[session %s] empty transcript, aborting turn", o.sessionID)
		o.sm.Transition(StateUserSpeaking)
		return
	}

	if err := o.sink.SendTranscript(transcript); err != nil {
		log.Printf("[session %s] failed to send transcript: %v", o.sessionID, err)
	}

	o.runLLMTurn(ctx, cancel, transcript)
}

// transcribeWithRetry implements the orchestrator-level "one silent
// retry on error" contract — distinct from any retry the
// STT adapter itself performs for an empty-but-errorless result.
func (o *Orchestrator) transcribeWithRetry(ctx context.Context, pcm []byte) (string, error) {
	transcript, err := o.stt.Transcribe(ctx, pcm)
	if err == nil {
		return transcript, nil
	}
	log.Printf("[session %s] STT attempt failed, retrying once: %v", o.sessionID, err)
	return o.stt.Transcribe(ctx, pcm)
}

// runFallbackTurn handles the "STT failed twice" branch: skip the LLM
// entirely, speak a fixed apology, and never touch memory.
func (o *Orchestrator) runFallbackTurn(ctx context.Context, cancel *CancelToken, text string) {
	audioSent, _ := o.synthesizeSentence(ctx, cancel, text, true)

	if cancel.Canceled() {
		o.sm.Transition(StateUserSpeaking)
		return
	}

	if err := o.sink.SendTTSText(text, audioSent); err != nil {
		log.Printf("[session %s] failed to send tts_text: %v", o.sessionID, err)
	}
	o.sm.Transition(StateUserSpeaking)
}

// runLLMTurn bridges streaming LLM tokens to a bounded sentence queue
// consumed by streaming TTS.
func (o *Orchestrator) runLLMTurn(ctx context.Context, cancel *CancelToken, transcript string) {
	messages := append(o.memory.Messages(), llm.Message{Role: "user", Content: transcript})
	sentenceCh := make(chan string, sentenceQueueCap)

	var (
		wg          sync.WaitGroup
		fullText    string
		producerErr error
		consumerErr error
		audioSent   bool
	)

	cancelAwareCtx, stopWatch := cancelAwareContext(ctx, cancel)
	defer stopWatch()
	llmCtx, cancelLLM := context.WithTimeout(cancelAwareCtx, llmTotalTimeout)
	defer cancelLLM()

	wg.Add(2)
	go func() {
		defer wg.Done()
		fullText, producerErr = o.runLLMProducer(llmCtx, cancel, messages, sentenceCh)
	}()
	go func() {
		defer wg.Done()
		audioSent, consumerErr = o.runTTSConsumer(ctx, cancel, sentenceCh)
	}()

	o.waitWithCancelGrace(&wg, cancel)

	if cancel.Canceled() {
		o.sm.Transition(StateUserSpeaking)
		return
	}

	if producerErr != nil {
		log.Printf("[session %s] LLM producer failed: %v", o.sessionID, producerErr)
		if err := o.sink.SendError("assistant is unavailable right now"); err != nil {
			log.Printf("[session %s] failed to send error: %v", o.sessionID, err)
		}
		o.sm.Transition(StateUserSpeaking)
		return
	}

	if consumerErr != nil {
		log.Printf("[session %s] TTS consumer failed: %v", o.sessionID, consumerErr)
		if err := o.sink.SendError("speech synthesis failed"); err != nil {
			log.Printf("[session %s] failed to send error: %v", o.sessionID, err)
		}
		o.sm.Transition(StateUserSpeaking)
		return
	}

	if err := o.sink.SendTTSText(fullText, audioSent); err != nil {
		log.Printf("[session %s] failed to send tts_text: %v", o.sessionID, err)
	}
	o.memory.CommitTurn(transcript, fullText)
	o.sm.Transition(StateUserSpeaking)
}

// waitWithCancelGrace waits for both subtasks to finish normally. If
// cancellation has been (or is about to be) signaled, it caps the wait
// at cancelGrace; subtasks that haven't observed cancellation
// by then are logged and abandoned rather than blocking teardown.
func (o *Orchestrator) waitWithCancelGrace(wg *sync.WaitGroup, cancel *CancelToken) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-cancel.Done():
	}

	select {
	case <-done:
	case <-time.After(cancelGrace):
		log.Printf("[session %s] subtasks did not terminate within %s of cancellation", o.sessionID, cancelGrace)
	}
}

// runLLMProducer streams the LLM reply, feeds tokens to a SentenceSplitter,
// and puts each completed sentence into sentenceCh. It always closes
// sentenceCh on return, which is also the consumer's sentinel. Returns
// the full assembled reply text for the eventual memory commit.
func (o *Orchestrator) runLLMProducer(ctx context.Context, cancel *CancelToken, messages []llm.Message, sentenceCh chan<- string) (string, error) {
	defer close(sentenceCh)

	events, err := o.llm.Stream(ctx, messages)
	if err != nil {
		return "", err
	}

	splitter := &SentenceSplitter{}
	var full strings.Builder
	firstToken := time.NewTimer(llmFirstTokenGrace)
	defer firstToken.Stop()
	gotFirstToken := false

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				if rem := splitter.Flush(); rem != "" {
					if !o.putSentence(sentenceCh, rem, cancel) {
						return full.String(), nil
					}
				}
				return full.String(), nil
			}
			if ev.Err != nil {
				return full.String(), ev.Err
			}
			if !gotFirstToken {
				gotFirstToken = true
				firstToken.Stop()
			}
			full.WriteString(ev.Delta)
			for _, sentence := range splitter.Feed(ev.Delta) {
				if !o.putSentence(sentenceCh, sentence, cancel) {
					return full.String(), nil
				}
			}
		case <-firstToken.C:
			if !gotFirstToken {
				return full.String(), context.DeadlineExceeded
			}
		case <-cancel.Done():
			return full.String(), nil
		case <-ctx.Done():
			return full.String(), ctx.Err()
		}
	}
}

func (o *Orchestrator) putSentence(sentenceCh chan<- string, sentence string, cancel *CancelToken) bool {
	select {
	case sentenceCh <- sentence:
		return true
	case <-cancel.Done():
		return false
	}
}

// runTTSConsumer drains sentenceCh, synthesizing and streaming each
// sentence's audio in order. It reports whether any audio was actually
// sent, so the caller can set tts_text.has_audio accordingly. A real TTS
// failure is returned as an error rather than swallowed, so the caller
// aborts the turn (error + no memory commit) instead of completing as if
// synthesis had succeeded. audio_end is sent exactly once, whenever the
// sentence stream drains normally — regardless of whether any sentence
// actually produced audio — so every turn that reaches memory commit has
// a matching audio_end.
func (o *Orchestrator) runTTSConsumer(ctx context.Context, cancel *CancelToken, sentenceCh <-chan string) (bool, error) {
	audioSent := false

	for {
		select {
		case sentence, ok := <-sentenceCh:
			if !ok {
				if cancel.Canceled() {
					return audioSent, nil
				}
				if err := o.sink.SendAudioEnd(); err != nil {
					log.Printf("[session %s] failed to send audio_end: %v", o.sessionID, err)
				}
				return audioSent, nil
			}
			sent, err := o.synthesizeSentence(ctx, cancel, sentence, !audioSent)
			audioSent = audioSent || sent
			if err != nil {
				return audioSent, err
			}
			if cancel.Canceled() {
				return audioSent, nil
			}
		case <-cancel.Done():
			return audioSent, nil
		}
	}
}

// synthesizeSentence streams one sentence's audio to the client.
// emitAudioStart controls whether this call should emit audio_start if
// it turns out to produce the turn's first chunk. Returns whether any
// chunk was actually sent, and a non-nil error for a genuine TTS
// failure (as opposed to a clean cancellation, which returns a nil
// error since it isn't a vendor failure).
func (o *Orchestrator) synthesizeSentence(ctx context.Context, cancel *CancelToken, sentence string, emitAudioStart bool) (bool, error) {
	cancelAwareCtx, stopWatch := cancelAwareContext(ctx, cancel)
	defer stopWatch()
	sentenceCtx, done := context.WithTimeout(cancelAwareCtx, ttsSentenceTimeout)
	defer done()

	chunks, err := o.tts.Stream(sentenceCtx, sentence)
	if err != nil {
		log.Printf("[session %s] TTS synthesis failed for sentence: %v", o.sessionID, err)
		return false, err
	}

	sentAny := false
	startedAudio := false
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return sentAny, nil
			}
			if chunk.Err != nil {
				log.Printf("[session %s] TTS stream error: %v", o.sessionID, chunk.Err)
				return sentAny, chunk.Err
			}
			if cancel.Canceled() {
				return sentAny, nil
			}
			if emitAudioStart && !startedAudio {
				startedAudio = true
				if err := o.sink.SendAudioStart(); err != nil {
					log.Printf("[session %s] failed to send audio_start: %v", o.sessionID, err)
				}
				o.sm.Transition(StateAISpeaking)
			}
			if err := o.sink.SendAudioChunk(chunk.Data); err != nil {
				log.Printf("[session %s] failed to send audio chunk: %v", o.sessionID, err)
				return sentAny, err
			}
			sentAny = true
		case <-cancel.Done():
			return sentAny, nil
		}
	}
}
