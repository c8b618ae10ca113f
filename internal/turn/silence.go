package turn

import "math"

const (
	// FrameSamples is the number of signed 16-bit samples in one 20ms frame
	// at 16kHz mono.
	FrameSamples = 320
	// FrameBytes is FrameSamples expressed as little-endian int16 bytes.
	FrameBytes = FrameSamples * 2

	// DefaultSilenceRMS: frames with rms below this are silence.
	DefaultSilenceRMS = 150
	// DefaultSilenceTurnEndMS: consecutive silent ms after voice required
	// to emit turn-end.
	DefaultSilenceTurnEndMS = 700
	// DefaultBargeInRMS: single-frame rms at/above this during AI output
	// is treated as a barge-in.
	DefaultBargeInRMS = 800
	// DefaultMinVoicedFrames: fewer voiced frames than this before silence
	// resumes means no turn-end is emitted (guards against noise puffs).
	DefaultMinVoicedFrames = 5

	frameDurationMS = 20
)

// SilenceParams holds the tunable thresholds. Zero-value fields are not
// valid. NewSilenceDetector substitutes DefaultSilenceParams only when the
// whole struct is zero; individual zero fields are not filled in.
type SilenceParams struct {
	SilenceRMS       float64
	SilenceTurnEndMS int
	BargeInRMS       float64
	MinVoicedFrames  int
}

// DefaultSilenceParams returns the mandated default constants.
func DefaultSilenceParams() SilenceParams {
	return SilenceParams{
		SilenceRMS:       DefaultSilenceRMS,
		SilenceTurnEndMS: DefaultSilenceTurnEndMS,
		BargeInRMS:       DefaultBargeInRMS,
		MinVoicedFrames:  DefaultMinVoicedFrames,
	}
}

// SilenceDetector classifies 20ms PCM frames by RMS energy and emits
// turn-end / barge-in signals. It holds no reference to the Session or its
// connection; the Gateway invokes it synchronously from its own read loop
// and acts on its return values, matching the single-threaded event path
// per session.
type SilenceDetector struct {
	params SilenceParams

	consecutiveSilentMS int
	voicedFrameCount    int
}

// NewSilenceDetector creates a detector with the given params. A zero
// SilenceParams is replaced with DefaultSilenceParams.
func NewSilenceDetector(params SilenceParams) *SilenceDetector {
	if params == (SilenceParams{}) {
		params = DefaultSilenceParams()
	}
	return &SilenceDetector{params: params}
}

// Params returns the detector's configured thresholds, so callers can
// classify a frame as voiced the same way the detector itself does (e.g.
// to decide whether a frame should reset the inactivity watchdog).
func (d *SilenceDetector) Params() SilenceParams {
	return d.params
}

// ComputeRMS computes the root-mean-square amplitude of a frame of
// little-endian signed 16-bit PCM samples.
func ComputeRMS(frame []byte) float64 {
	n := len(frame) / 2
	if n == 0 {
		return 0
	}

	var sumSquares float64
	for i := 0; i < n; i++ {
		lo := frame[2*i]
		hi := frame[2*i+1]
		sample := int16(uint16(lo) | uint16(hi)<<8)
		s := float64(sample)
		sumSquares += s * s
	}

	return math.Sqrt(sumSquares / float64(n))
}

// ProcessUserSpeaking handles one frame while the session is in
// USER_SPEAKING. It returns (rms, turnEnd). Callers accumulate the frame
// into the voiced buffer unconditionally ("accumulate every
// frame into the voiced buffer" in this state) regardless of the return.
func (d *SilenceDetector) ProcessUserSpeaking(frame []byte) (rms float64, turnEnd bool) {
	rms = ComputeRMS(frame)

	if rms < d.params.SilenceRMS {
		d.consecutiveSilentMS += frameDurationMS
	} else {
		d.consecutiveSilentMS = 0
		d.voicedFrameCount++
	}

	if d.consecutiveSilentMS >= d.params.SilenceTurnEndMS && d.voicedFrameCount >= d.params.MinVoicedFrames {
		return rms, true
	}
	return rms, false
}

// ProcessDuringAIOutput handles one frame while the session is in
// AI_PROCESSING or AI_SPEAKING. It returns (rms, bargeIn). The frame is
// NOT accumulated into any buffer unless a barge-in is confirmed — the
// caller starts a fresh voiced buffer with this frame on bargeIn=true.
func (d *SilenceDetector) ProcessDuringAIOutput(frame []byte) (rms float64, bargeIn bool) {
	rms = ComputeRMS(frame)
	return rms, rms >= d.params.BargeInRMS
}

// Reset clears per-turn counters. Call when a new USER_SPEAKING turn
// begins (after a committed turn or after a barge-in).
func (d *SilenceDetector) Reset() {
	d.consecutiveSilentMS = 0
	d.voicedFrameCount = 0
}

// VoicedFrameCount reports the number of voiced frames seen since the last
// Reset; used to check the MIN_VOICED invariant in tests and diagnostics.
func (d *SilenceDetector) VoicedFrameCount() int {
	return d.voicedFrameCount
}
