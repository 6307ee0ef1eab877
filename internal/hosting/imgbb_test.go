package hosting

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"retouch/internal/domain"
)

type countingTransport struct {
	calls atomic.Int64
}

func (t *countingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	t.calls.Add(1)
	return nil, errors.New("no network in this test")
}

func TestUploadPreservesPayloadBytes(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G', 0x00, 0xff, 0x01, 0x02}
	var received []byte
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		decoded, err := base64.StdEncoding.DecodeString(r.PostFormValue("image"))
		if err != nil {
			t.Fatalf("image field not base64: %v", err)
		}
		received = decoded
		if got := r.PostFormValue("name"); got != "sample.png" {
			t.Fatalf("name = %q, want sample.png", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"status":  200,
			"data":    map[string]any{"url": "https://i.ibb.co/abc/sample.png"},
		})
	}))
	defer ts.Close()

	client := NewClient(Options{APIKey: "test-key", BaseURL: ts.URL})
	artifact, err := client.Upload(context.Background(), Payload{Data: payload, Filename: "sample.png"})
	if err != nil {
		t.Fatalf("Upload error: %v", err)
	}
	if artifact.URL != "https://i.ibb.co/abc/sample.png" {
		t.Fatalf("unexpected url: %s", artifact.URL)
	}
	if !bytes.Equal(received, payload) {
		t.Fatalf("payload bytes mangled in transit: got %v want %v", received, payload)
	}
}

func TestUploadMissingKeyMakesNoNetworkCall(t *testing.T) {
	transport := &countingTransport{}
	client := NewClient(Options{HTTPClient: &http.Client{Transport: transport}})

	_, err := client.Upload(context.Background(), Payload{Data: []byte("x")})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
	if n := transport.calls.Load(); n != 0 {
		t.Fatalf("expected zero network calls, got %d", n)
	}
}

func TestUploadRejectedCarriesServiceMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"status":  400,
			"error":   map[string]any{"message": "Invalid API v1 key", "code": 100},
		})
	}))
	defer ts.Close()

	client := NewClient(Options{APIKey: "bad-key", BaseURL: ts.URL})
	_, err := client.Upload(context.Background(), Payload{Data: []byte("x")})
	if !errors.Is(err, domain.ErrUploadRejected) {
		t.Fatalf("err = %v, want ErrUploadRejected", err)
	}
	if got := err.Error(); !strings.Contains(got, "Invalid API v1 key") {
		t.Fatalf("error %q does not carry the service message", got)
	}
}

func TestUploadRejectedWithStringError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   "Unknown Error",
		})
	}))
	defer ts.Close()

	client := NewClient(Options{APIKey: "k", BaseURL: ts.URL})
	_, err := client.Upload(context.Background(), Payload{Data: []byte("x")})
	if !errors.Is(err, domain.ErrUploadRejected) {
		t.Fatalf("err = %v, want ErrUploadRejected", err)
	}
	if got := err.Error(); !strings.Contains(got, "Unknown Error") {
		t.Fatalf("error %q does not carry the service message", got)
	}
}

func TestUploadMalformedBodyIsProtocolError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer ts.Close()

	client := NewClient(Options{APIKey: "k", BaseURL: ts.URL})
	_, err := client.Upload(context.Background(), Payload{Data: []byte("x")})
	if !errors.Is(err, domain.ErrProtocol) {
		t.Fatalf("err = %v, want ErrProtocol", err)
	}
}

func TestUploadSuccessWithoutURLIsProtocolError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": map[string]any{}})
	}))
	defer ts.Close()

	client := NewClient(Options{APIKey: "k", BaseURL: ts.URL})
	_, err := client.Upload(context.Background(), Payload{Data: []byte("x")})
	if !errors.Is(err, domain.ErrProtocol) {
		t.Fatalf("err = %v, want ErrProtocol", err)
	}
}

func TestUploadTransportFailureIsNetworkError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close() // connection refused from here on

	client := NewClient(Options{APIKey: "k", BaseURL: ts.URL})
	_, err := client.Upload(context.Background(), Payload{Data: []byte("x")})
	if !errors.Is(err, domain.ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
}
