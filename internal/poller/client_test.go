package poller

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/http/httptrace"
	"strings"
	"testing"
	"time"
)

// TestClient_ConnectionReuse verifies that sequential requests to the NAS
// reuse pooled connections.
func TestClient_ConnectionReuse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"code":200}`))
	}))
	defer server.Close()

	client := NewClient()

	var reusedCount int
	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			if info.Reused {
				reusedCount++
			}
		},
	}

	const numRequests = 5

	for i := 0; i < numRequests; i++ {
		ctx := httptrace.WithClientTrace(context.Background(), trace)
		resp := client.Fetch(ctx, Request{URL: server.URL, Timeout: 5 * time.Second})
		if resp.Error != nil {
			t.Fatalf("request %d failed: %v", i, resp.Error)
		}
	}

	expectedMinReuse := numRequests - 2 // allow some tolerance
	if reusedCount < expectedMinReuse {
		t.Errorf("expected at least %d reused connections, got %d out of %d requests",
			expectedMinReuse, reusedCount, numRequests)
	}
}

func TestClient_PostBody(t *testing.T) {
	var (
		gotMethod string
		gotBody   string
		gotType   string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = w.Write([]byte(`{"code":200}`))
	}))
	defer server.Close()

	client := NewClient()
	resp := client.Fetch(context.Background(), Request{
		Method:  http.MethodPost,
		URL:     server.URL,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    []byte(`{"force":true}`),
	})
	if resp.Error != nil {
		t.Fatalf("Fetch() error = %v", resp.Error)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("method = %q, want POST", gotMethod)
	}
	if gotBody != `{"force":true}` {
		t.Errorf("body = %q, want %q", gotBody, `{"force":true}`)
	}
	if gotType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotType)
	}
}

func TestClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	client := NewClient()
	resp := client.Fetch(context.Background(), Request{URL: server.URL, Timeout: 50 * time.Millisecond})
	if resp.Error == nil {
		t.Fatal("Fetch() error = nil, want timeout error")
	}
	if resp.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0", resp.StatusCode)
	}
}

func TestClient_BodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", maxResponseBodySize+100)))
	}))
	defer server.Close()

	resp := NewClient().Fetch(context.Background(), Request{URL: server.URL})
	if resp.Error != nil {
		t.Fatalf("Fetch() error = %v", resp.Error)
	}
	if len(resp.Body) != maxResponseBodySize {
		t.Errorf("len(Body) = %d, want %d", len(resp.Body), maxResponseBodySize)
	}
}

func TestClient_InsecureSkipVerify(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":200}`))
	}))
	defer server.Close()

	strict := NewClient().Fetch(context.Background(), Request{URL: server.URL})
	if strict.Error == nil {
		t.Error("verifying client accepted self-signed certificate")
	}

	lenient := NewClient(WithInsecureSkipVerify(true)).Fetch(context.Background(), Request{URL: server.URL})
	if lenient.Error != nil {
		t.Errorf("non-verifying client error = %v", lenient.Error)
	}
}

func TestClient_InvalidURL(t *testing.T) {
	resp := NewClient().Fetch(context.Background(), Request{URL: "://bad"})
	if resp.Error == nil {
		t.Error("Fetch() error = nil, want request construction error")
	}
}

// TestClient_Close verifies that Close() is safe to call and idempotent.
func TestClient_Close(t *testing.T) {
	client := NewClient()

	client.Close()
	client.Close()
	client.Close()
}

// TestClient_Close_NilClient verifies that Close() handles nil receiver safely.
func TestClient_Close_NilClient(t *testing.T) {
	var client *Client

	client.Close()
}

// TestClient_Close_ActuallyClosesConnections verifies that Close closes idle
// connections, but the client remains usable for new requests.
func TestClient_Close_ActuallyClosesConnections(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewClient()

	for i := 0; i < 5; i++ {
		resp := client.Fetch(context.Background(), Request{URL: server.URL, Timeout: time.Second})
		if resp.Error != nil {
			t.Fatalf("request %d failed: %v", i, resp.Error)
		}
	}

	client.Close()

	resp := client.Fetch(context.Background(), Request{URL: server.URL, Timeout: time.Second})
	if resp.Error != nil {
		t.Errorf("request after Close failed: %v", resp.Error)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
}
