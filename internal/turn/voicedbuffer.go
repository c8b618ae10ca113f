package turn

import "sync"

// VoicedBufferCapBytes is the ~10s cap on accumulated PCM audio
// (16kHz * 2 bytes/sample * 10s = 320000 bytes).
const VoicedBufferCapBytes = 320_000

// VoicedBuffer accumulates raw PCM16LE audio for the active turn: an
// accumulate/flush/reset buffer generalized from a word slice to a byte
// buffer with a hard size cap.
type VoicedBuffer struct {
	mu  sync.Mutex
	buf []byte
}

// NewVoicedBuffer creates an empty voiced buffer.
func NewVoicedBuffer() *VoicedBuffer {
	return &VoicedBuffer{}
}

// Append adds a frame to the buffer. It returns true if appending this
// frame reached or exceeded VoicedBufferCapBytes, signaling the caller to
// force a turn-end as if silence had triggered it.
func (b *VoicedBuffer) Append(frame []byte) (capReached bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, frame...)
	return len(b.buf) >= VoicedBufferCapBytes
}

// Flush returns the accumulated bytes and resets the buffer; the buffer
// drops its own reference, so the returned slice belongs to the caller.
func (b *VoicedBuffer) Flush() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buf) == 0 {
		return nil
	}
	out := b.buf
	b.buf = nil
	return out
}

// Reset discards any accumulated audio without returning it (used when
// starting a fresh buffer after a barge-in, seeded separately with the
// barge-in frame).
func (b *VoicedBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = nil
}

// Len returns the number of bytes currently buffered.
func (b *VoicedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}
