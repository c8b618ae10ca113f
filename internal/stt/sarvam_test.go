package stt

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// withTestServer swaps in an httpClient that routes every request at the
// fixed sarvamURL to the given test server, so handler logic can be
// exercised without a live network call.
func withTestServer(client *Client, server *httptest.Server) {
	client.httpClient = server.Client()
	client.httpClient.Transport = redirectTransport{target: server.URL}
}

type redirectTransport struct {
	target string
}

func (rt redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base, err := req.URL.Parse(rt.target)
	if err != nil {
		return nil, err
	}
	clone := req.Clone(req.Context())
	targetURL := *req.URL
	targetURL.Scheme = base.Scheme
	targetURL.Host = base.Host
	clone.URL = &targetURL
	clone.Host = base.Host
	return http.DefaultTransport.RoundTrip(clone)
}

func TestTranscribeSendsMultipartWAVAndParsesTranscript(t *testing.T) {
	var gotModel, gotLang, gotKey, gotFilename string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("api-subscription-key")

		reader, err := r.MultipartReader()
		if err != nil {
			t.Fatalf("expected multipart body: %v", err)
		}
		for {
			part, err := reader.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("reading part: %v", err)
			}
			switch part.FormName() {
			case "file":
				gotFilename = part.FileName()
			case "model":
				b, _ := io.ReadAll(part)
				gotModel = string(b)
			case "language_code":
				b, _ := io.ReadAll(part)
				gotLang = string(b)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"transcript": "  hello world  "})
	}))
	defer server.Close()

	client := NewClient("test-key", "")
	withTestServer(client, server)

	pcm := make([]byte, 4000)
	for i := range pcm {
		pcm[i] = byte(i % 7)
	}

	got, err := client.Transcribe(context.Background(), pcm)
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if got != "hello world" {
		t.Fatalf("expected trimmed transcript, got %q", got)
	}
	if gotKey != "test-key" {
		t.Fatalf("expected api key header, got %q", gotKey)
	}
	if gotModel != "saarika:v2.5" {
		t.Fatalf("expected default model, got %q", gotModel)
	}
	if gotLang != "en-IN" {
		t.Fatalf("expected default language hint, got %q", gotLang)
	}
	if gotFilename != "audio.wav" {
		t.Fatalf("expected audio.wav filename, got %q", gotFilename)
	}
}

func TestTranscribeRejectsAudioBelowMinimumWithoutCallingUpstream(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := NewClient("test-key", "")
	withTestServer(client, server)

	got, err := client.Transcribe(context.Background(), make([]byte, 100))
	if err != nil {
		t.Fatalf("expected no error for short audio, got %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty transcript for short audio, got %q", got)
	}
	if called {
		t.Fatal("expected upstream not to be called for audio below minimum size")
	}
}

func TestTranscribeReturnsErrorOnNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream exploded"))
	}))
	defer server.Close()

	client := NewClient("test-key", "")
	withTestServer(client, server)

	_, err := client.Transcribe(context.Background(), make([]byte, 4000))
	if err == nil {
		t.Fatal("expected error for non-200 status")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status code in error, got %v", err)
	}
}

func TestTranscribeWithRetryRetriesOnceOnEmptyTranscript(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Header().Set("Content-Type", "application/json")
		if attempts == 1 {
			_ = json.NewEncoder(w).Encode(map[string]string{"transcript": ""})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"transcript": "second try"})
	}))
	defer server.Close()

	client := NewClient("test-key", "")
	withTestServer(client, server)

	got, err := client.TranscribeWithRetry(context.Background(), make([]byte, 4000))
	if err != nil {
		t.Fatalf("TranscribeWithRetry failed: %v", err)
	}
	if got != "second try" {
		t.Fatalf("expected transcript from retry, got %q", got)
	}
	if attempts != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", attempts)
	}
}

func TestTranscribeWithRetryDoesNotRetryOnError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient("test-key", "")
	withTestServer(client, server)

	_, err := client.TranscribeWithRetry(context.Background(), make([]byte, 4000))
	if err == nil {
		t.Fatal("expected error to propagate without retry")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt on hard error, got %d", attempts)
	}
}

func TestPcmToWAVHeaderFields(t *testing.T) {
	pcm := make([]byte, 320)
	wav := pcmToWAV(pcm, 16000)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("expected header+payload length %d, got %d", 44+len(pcm), len(wav))
	}
	if string(wav[0:4]) != "RIFF" {
		t.Fatalf("expected RIFF chunk ID, got %q", wav[0:4])
	}
	if string(wav[8:12]) != "WAVE" {
		t.Fatalf("expected WAVE format, got %q", wav[8:12])
	}
	if string(wav[12:16]) != "fmt " {
		t.Fatalf("expected fmt subchunk, got %q", wav[12:16])
	}
	if string(wav[36:40]) != "data" {
		t.Fatalf("expected data subchunk, got %q", wav[36:40])
	}
}
