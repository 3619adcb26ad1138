package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	messagerepo "github.com/platonv/delayq/internal/dal/repositories/message"
	webhookrepo "github.com/platonv/delayq/internal/dal/repositories/webhook"
	"github.com/platonv/delayq/internal/dal/sqlite"
	"github.com/platonv/delayq/internal/metrics"
	"github.com/platonv/delayq/internal/service/errs"
	"github.com/platonv/delayq/internal/service/models/message"
	"github.com/platonv/delayq/internal/service/models/webhook"
	"github.com/platonv/delayq/internal/service/services/queuesvc"
	"github.com/platonv/delayq/internal/service/services/webhooksvc"
	"github.com/platonv/delayq/internal/transport/http/respond"
)

const now = 5000

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	client, err := sqlite.NewClient(sqlite.MemoryDSN(t.Name()))
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	clock := func() time.Time { return time.Unix(now, 0) }
	m := metrics.NewQueueMetrics()

	queueSvc := queuesvc.MustNewQueueService(
		queuesvc.WithMessageRepository(messagerepo.NewMessageRepository(client)),
		queuesvc.WithLeaseDuration(30*time.Second),
		queuesvc.WithClock(clock),
		queuesvc.WithRecorder(m),
	)
	webhookSvc := webhooksvc.MustNewWebhookService(
		webhooksvc.WithWebhookRepository(webhookrepo.NewWebhookRepository(client)),
		webhooksvc.WithClock(clock),
	)

	transport := NewHTTPTransport(queueSvc, webhookSvc, WithPinger(client), WithMetricsHandler(m.Handler()))
	transport.RegisterRoutes()

	srv := httptest.NewServer(transport.Handler())
	t.Cleanup(srv.Close)

	return srv
}

func do(t *testing.T, method, url string, body any, out any) int {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode %s %s response: %v", method, url, err)
		}
	}

	return resp.StatusCode
}

func TestScheduleLeaseAckRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	var stored message.Message
	status := do(t, http.MethodPost, srv.URL+"/schedule_message", map[string]any{
		"key":     "k1",
		"kind":    "invoice",
		"payload": []byte("hello"),
	}, &stored)
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}
	if stored.ScheduledAt != now || stored.CreatedAt != now {
		t.Fatalf("unexpected stored message %+v", stored)
	}

	var leased []message.Message
	if status := do(t, http.MethodGet, srv.URL+"/poll/invoice", nil, &leased); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if len(leased) != 1 || string(leased[0].Payload) != "hello" {
		t.Fatalf("unexpected poll result %+v", leased)
	}
	if leased[0].ScheduledAt != now+30 {
		t.Fatalf("expected fencing token %d, got %d", now+30, leased[0].ScheduledAt)
	}

	var again []message.Message
	do(t, http.MethodGet, srv.URL+"/poll", nil, &again)
	if len(again) != 0 {
		t.Fatalf("expected leased message to be hidden, got %+v", again)
	}

	var acked struct {
		Deleted int64 `json:"deleted"`
	}
	status = do(t, http.MethodPost, srv.URL+"/ack", map[string]any{
		"key":          "k1",
		"kind":         "invoice",
		"created_at":   leased[0].CreatedAt,
		"scheduled_at": leased[0].ScheduledAt,
	}, &acked)
	if status != http.StatusOK || acked.Deleted != 1 {
		t.Fatalf("expected one deleted row, got status %d body %+v", status, acked)
	}

	var remaining []message.Message
	do(t, http.MethodGet, srv.URL+"/get_messages", nil, &remaining)
	if len(remaining) != 0 {
		t.Fatalf("expected empty queue, got %+v", remaining)
	}
}

func TestScheduleWithDelay(t *testing.T) {
	srv := newTestServer(t)

	var stored message.Message
	do(t, http.MethodPost, srv.URL+"/schedule_message", map[string]any{"kind": "a", "delay_seconds": 60}, &stored)
	if stored.ScheduledAt != now+60 || stored.ScheduledAtInitially != now+60 {
		t.Fatalf("expected scheduled_at %d, got %+v", now+60, stored)
	}
	if stored.Key == "" {
		t.Fatal("expected a generated key")
	}

	var leased []message.Message
	do(t, http.MethodGet, srv.URL+"/poll", nil, &leased)
	if len(leased) != 0 {
		t.Fatalf("expected nothing due yet, got %+v", leased)
	}
}

func TestScheduleConflict(t *testing.T) {
	srv := newTestServer(t)
	body := map[string]any{"key": "k1", "kind": "a"}

	if status := do(t, http.MethodPost, srv.URL+"/schedule_message", body, nil); status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}

	var errBody respond.ErrorBody
	if status := do(t, http.MethodPost, srv.URL+"/schedule_message", body, &errBody); status != http.StatusConflict {
		t.Fatalf("expected 409, got %d", status)
	}
	if errBody.Error.Code != errs.CodeMessageConflict {
		t.Fatalf("expected %s, got %+v", errs.CodeMessageConflict, errBody)
	}
}

func TestBadRequests(t *testing.T) {
	srv := newTestServer(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"malformed json", http.MethodPost, "/schedule_message", "{"},
		{"negative delay", http.MethodPost, "/schedule_message", map[string]any{"delay_seconds": -1}},
		{"delay and schedule", http.MethodPost, "/schedule_message", map[string]any{"delay_seconds": 5, "scheduled_at": 10}},
		{"ack without key", http.MethodPost, "/ack", map[string]any{"kind": "a"}},
		{"negative limit", http.MethodGet, "/poll?limit=-1", nil},
		{"non numeric limit", http.MethodGet, "/poll?limit=many", nil},
		{"webhook without url", http.MethodPost, "/webhooks", map[string]any{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var errBody respond.ErrorBody
			if status := do(t, tc.method, srv.URL+tc.path, tc.body, &errBody); status != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", status)
			}
			if errBody.Error.Code != errs.CodeBadInput {
				t.Fatalf("expected %s, got %+v", errs.CodeBadInput, errBody)
			}
		})
	}
}

func TestPollKindSelection(t *testing.T) {
	srv := newTestServer(t)
	for _, m := range []map[string]any{
		{"key": "a1", "kind": "a"},
		{"key": "e1", "kind": ""},
		{"key": "b1", "kind": "b"},
	} {
		if status := do(t, http.MethodPost, srv.URL+"/schedule_message", m, nil); status != http.StatusCreated {
			t.Fatalf("expected 201, got %d", status)
		}
	}

	var empty []message.Message
	do(t, http.MethodGet, srv.URL+"/poll?kind=", nil, &empty)
	if len(empty) != 1 || empty[0].Key != "e1" {
		t.Fatalf("expected only the empty kind, got %+v", empty)
	}

	var limited []message.Message
	do(t, http.MethodGet, srv.URL+"/poll?limit=1", nil, &limited)
	if len(limited) != 1 {
		t.Fatalf("expected one message, got %+v", limited)
	}

	var rest []message.Message
	do(t, http.MethodGet, srv.URL+"/poll", nil, &rest)
	if len(rest) != 1 {
		t.Fatalf("expected the last message, got %+v", rest)
	}
}

func TestWebhookEndpoints(t *testing.T) {
	srv := newTestServer(t)

	var created webhook.Webhook
	if status := do(t, http.MethodPost, srv.URL+"/webhooks", map[string]any{"url": webhook.SampleURL}, &created); status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}

	var updated webhook.Webhook
	status := do(t, http.MethodPut, srv.URL+"/webhooks/"+created.ID, map[string]any{
		"url":         "https://example.com/hook",
		"fails_count": 2,
	}, &updated)
	if status != http.StatusOK || updated.FailsCount != 2 || updated.URL != "https://example.com/hook" {
		t.Fatalf("unexpected update result %d %+v", status, updated)
	}

	var hooks []webhook.Webhook
	do(t, http.MethodGet, srv.URL+"/webhooks", nil, &hooks)
	if len(hooks) != 1 || hooks[0].ID != created.ID {
		t.Fatalf("unexpected webhooks %+v", hooks)
	}

	var errBody respond.ErrorBody
	status = do(t, http.MethodPut, srv.URL+"/webhooks/missing", map[string]any{"url": webhook.SampleURL}, &errBody)
	if status != http.StatusNotFound || errBody.Error.Code != errs.CodeNotFound {
		t.Fatalf("expected 404, got %d %+v", status, errBody)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	if status := do(t, http.MethodGet, srv.URL+"/health", nil, nil); status != http.StatusOK {
		t.Fatalf("expected 200 from /health, got %d", status)
	}

	do(t, http.MethodPost, srv.URL+"/schedule_message", map[string]any{"kind": "a"}, nil)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("failed to read metrics: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`delayq_messages_scheduled_total{kind="a"} 1`)) {
		t.Fatalf("expected scheduled counter in metrics output")
	}
}

type unavailableQueue struct{}

func (unavailableQueue) Now() int64 { return now }

func (unavailableQueue) List(context.Context) ([]message.Message, error) {
	return nil, errs.Transient(errors.New("dial tcp: connection refused"), "failed to list messages")
}

func (unavailableQueue) Schedule(context.Context, message.Message) (message.Message, error) {
	return message.Message{}, errors.New("boom")
}

func (unavailableQueue) PollBatch(context.Context, int64, message.KindFilter, int) ([]message.Message, error) {
	return nil, errs.LeaseContention("lost 64 lease races in a row")
}

func (unavailableQueue) Ack(context.Context, message.Ack) (int64, error) {
	return 0, nil
}

func TestStoreFailuresMapToStatus(t *testing.T) {
	transport := NewHTTPTransport(unavailableQueue{}, nil)
	transport.RegisterRoutes()
	srv := httptest.NewServer(transport.Handler())
	defer srv.Close()

	var errBody respond.ErrorBody
	if status := do(t, http.MethodGet, srv.URL+"/get_messages", nil, &errBody); status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", status)
	}
	if errBody.Error.Code != errs.CodeStoreUnavailable {
		t.Fatalf("expected %s, got %+v", errs.CodeStoreUnavailable, errBody)
	}

	errBody = respond.ErrorBody{}
	if status := do(t, http.MethodGet, srv.URL+"/poll", nil, &errBody); status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", status)
	}
	if errBody.Error.Code != errs.CodeLeaseContention {
		t.Fatalf("expected %s, got %+v", errs.CodeLeaseContention, errBody)
	}

	errBody = respond.ErrorBody{}
	status := do(t, http.MethodPost, srv.URL+"/schedule_message", map[string]any{"kind": "a"}, &errBody)
	if status != http.StatusInternalServerError {
		t.Fatalf("expected 500 for an unclassified error, got %d", status)
	}
	if errBody.Error.Code != errs.CodeInternal {
		t.Fatalf("expected %s, got %+v", errs.CodeInternal, errBody)
	}
}
