package httpdelivery

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/platonv/delayq/internal/service/models/message"
	"github.com/platonv/delayq/internal/service/models/webhook"
)

func TestDeliverPostsPayloadAndHeaders(t *testing.T) {
	var (
		gotBody    []byte
		gotHeaders http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		gotBody, _ = io.ReadAll(r.Body)
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	msg := message.New("k1", "a", []byte{0x00, 0x01, 0xff}, 1300, 1000)
	hook := webhook.FromURL(srv.URL, 1000)

	if err := NewClient().Deliver(context.Background(), hook, msg); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}

	if string(gotBody) != string(msg.Payload) {
		t.Fatalf("expected payload %v, got %v", msg.Payload, gotBody)
	}
	checks := map[string]string{
		"Content-Type":    "application/octet-stream",
		HeaderKey:         "k1",
		HeaderKind:        "a",
		HeaderCreatedAt:   "1000",
		HeaderScheduledAt: "1300",
	}
	for name, want := range checks {
		if got := gotHeaders.Get(name); got != want {
			t.Fatalf("expected header %s=%q, got %q", name, want, got)
		}
	}
}

func TestDeliverFailsOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewClient().Deliver(context.Background(), webhook.FromURL(srv.URL, 1000), message.Sample(1000))
	if err == nil {
		t.Fatal("expected an error for status 502")
	}
}

func TestDeliverFailsOnUnreachableWebhook(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewClient().Deliver(context.Background(), webhook.FromURL(url, 1000), message.Sample(1000))
	if err == nil {
		t.Fatal("expected an error for a closed server")
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(WithBreaker(2, time.Minute))
	hook := webhook.FromURL(srv.URL, 1000)

	for i := 0; i < 2; i++ {
		err := client.Deliver(context.Background(), hook, message.Sample(1000))
		if err == nil || errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("attempt %d: expected a delivery failure, got %v", i, err)
		}
	}

	err := client.Deliver(context.Background(), hook, message.Sample(1000))
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected the open breaker to skip the call, got %d calls", calls.Load())
	}

	other := webhook.FromURL(srv.URL, 1000)
	if err := client.Deliver(context.Background(), other, message.Sample(1000)); errors.Is(err, ErrCircuitOpen) {
		t.Fatal("expected breakers to be kept per webhook")
	}
}
