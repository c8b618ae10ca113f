// Package stt implements the speech-to-text adapter boundary from spec
// §4.6: transcribe(pcm_16le_16k_mono_bytes, language_hint) -> transcript.
package stt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	sarvamURL  = "https://api.sarvam.ai/speech-to-text"
	sampleRate = 16000

	// minAudioBytes rejects clips shorter than ~100ms as unlikely to
	// contain usable speech, avoiding a wasted upstream call.
	minAudioBytes = 3200

	requestTimeout = 15 * time.Second
)

// Client transcribes PCM audio via the Sarvam speech-to-text API.
type Client struct {
	apiKey     string
	model      string
	languageHint string
	httpClient *http.Client
}

// NewClient creates a Sarvam STT client. apiKey is required; languageHint
// defaults to "en-IN" if empty.
func NewClient(apiKey string, languageHint string) *Client {
	if languageHint == "" {
		languageHint = "en-IN"
	}
	return &Client{
		apiKey:       apiKey,
		model:        "saarika:v2.5",
		languageHint: languageHint,
		httpClient:   &http.Client{Timeout: requestTimeout},
	}
}

// Transcribe sends pcm (16-bit LE mono PCM at 16kHz) to Sarvam and returns
// the transcript. Returns ("", nil) on "no speech" (empty transcript or
// too-short audio), never a sentinel error for that case.
func (c *Client) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	if len(pcm) < minAudioBytes {
		return "", nil
	}

	wav := pcmToWAV(pcm, sampleRate)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("sarvam: create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return "", fmt.Errorf("sarvam: write form file: %w", err)
	}
	if err := writer.WriteField("model", c.model); err != nil {
		return "", fmt.Errorf("sarvam: write model field: %w", err)
	}
	if err := writer.WriteField("language_code", c.languageHint); err != nil {
		return "", fmt.Errorf("sarvam: write language field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("sarvam: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sarvamURL, &body)
	if err != nil {
		return "", fmt.Errorf("sarvam: build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("api-subscription-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sarvam: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("sarvam: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Transcript string `json:"transcript"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("sarvam: decode response: %w", err)
	}

	return strings.TrimSpace(result.Transcript), nil
}

// TranscribeWithRetry calls Transcribe once, and retries once after a
// short delay if the first attempt returns an empty transcript with no
// error (treated as a transient miss, per the adapter's "one silent
// retry for STT"). A non-nil error on either attempt is returned
// immediately without retry — only the empty-result case retries.
func (c *Client) TranscribeWithRetry(ctx context.Context, pcm []byte) (string, error) {
	transcript, err := c.Transcribe(ctx, pcm)
	if err != nil {
		return "", err
	}
	if transcript != "" {
		return transcript, nil
	}

	select {
	case <-time.After(500 * time.Millisecond):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	return c.Transcribe(ctx, pcm)
}

// pcmToWAV wraps raw 16-bit mono PCM in a minimal 44-byte RIFF/WAVE
// header.
func pcmToWAV(pcm []byte, sampleRate int) []byte {
	const (
		numChannels   = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * numChannels * bitsPerSample / 8
	blockAlign := numChannels * bitsPerSample / 8
	dataSize := uint32(len(pcm))

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16)) // fmt chunk size
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))  // PCM format tag
	_ = binary.Write(&buf, binary.LittleEndian, uint16(numChannels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, dataSize)
	buf.Write(pcm)

	return buf.Bytes()
}
