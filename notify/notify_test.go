package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestHTTPDispatcherSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if r.Header.Get("Authorization") != "key" {
			t.Errorf("Authorization = %q, want key", r.Header.Get("Authorization"))
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["numbers"] != "15551234567" || body["variables"] != "123456" || body["route"] != "otp" {
			t.Errorf("unexpected body %v", body)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewHTTPDispatcher("key", server.URL, "", nil)
	err := d.Send(context.Background(), Message{Destination: "+1 (555) 123-4567", Code: "123456"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestHTTPDispatcherFailureHidesCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("bad number, code 654321"))
	}))
	defer server.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	d := NewHTTPDispatcher("key", server.URL, "", zap.New(core))
	err := d.Send(context.Background(), Message{Destination: "5551234567", Code: "654321"})
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
	if strings.Contains(err.Error(), "654321") {
		t.Fatal("error must not contain the code")
	}
	for _, e := range logs.All() {
		for k, v := range e.ContextMap() {
			if s, ok := v.(string); ok && (strings.Contains(s, "654321") || strings.Contains(s, "5551234567")) {
				t.Fatalf("log field %s leaked %q", k, s)
			}
		}
	}
}

func TestHTTPDispatcherNotConfigured(t *testing.T) {
	d := NewHTTPDispatcher("", "", "", nil)
	if err := d.Send(context.Background(), Message{Destination: "1", Code: "2"}); !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
}

func TestLogDispatcherRedacts(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	d := NewLogDispatcher(zap.New(core))

	if err := d.Send(context.Background(), Message{Destination: "5551234567", Code: "ABCD2345", Purpose: "password_reset"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if _, ok := fields["code"]; ok {
		t.Fatal("code must not be logged")
	}
	if fields["destination"] == "5551234567" {
		t.Fatal("destination must be redacted")
	}
}

func TestFuncAdapter(t *testing.T) {
	var got Message
	d := Func(func(_ context.Context, m Message) error {
		got = m
		return nil
	})
	_ = d.Send(context.Background(), Message{Code: "x"})
	if got.Code != "x" {
		t.Fatal("Func did not forward the message")
	}
}
