package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testWebhookConfig(url string) WebhookConfig {
	return WebhookConfig{
		Enabled:     true,
		WebhookURL:  url,
		Timeout:     2 * time.Second,
		MaxAttempts: 2,
		RetryDelay:  time.Millisecond,
	}
}

func TestBuildSlackPayload(t *testing.T) {
	msg := NewMessage(testSource(), testChange(true))
	payload := buildSlackPayload(msg)

	if payload.Text != msg.Title() {
		t.Errorf("fallback text = %q, want %q", payload.Text, msg.Title())
	}
	if len(payload.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(payload.Blocks))
	}

	section := payload.Blocks[0]
	if section.Type != "section" || section.Text == nil || section.Text.Type != "mrkdwn" {
		t.Fatalf("unexpected section block: %+v", section)
	}
	wantLink := "*<https://agency.example/recalls|[CRITICAL] electrical_safety: RAPEX (EU)>*"
	if !strings.HasPrefix(section.Text.Text, wantLink) {
		t.Errorf("section should start with %q, got %q", wantLink, section.Text.Text)
	}

	ctxBlock := payload.Blocks[1]
	if ctxBlock.Type != "context" || len(ctxBlock.Elements) != 1 {
		t.Fatalf("unexpected context block: %+v", ctxBlock)
	}
	if !strings.HasSuffix(ctxBlock.Elements[0].Text, "2024-05-01T12:00:00Z") {
		t.Errorf("context should end with the detection time, got %q", ctxBlock.Elements[0].Text)
	}
}

func TestBuildSlackPayload_TruncatesLongReasoning(t *testing.T) {
	rec := testChange(true)
	rec.Classification.Reasoning = strings.Repeat("あ", 5000)
	payload := buildSlackPayload(NewMessage(testSource(), rec))

	text := payload.Blocks[0].Text.Text
	if n := len([]rune(text)); n != maxSectionTextLength {
		t.Errorf("section length = %d runes, want %d", n, maxSectionTextLength)
	}
	if !strings.HasSuffix(text, truncationSuffix) {
		t.Errorf("truncated section should end with %q", truncationSuffix)
	}
}

func TestSlackNotifier_NotifyChange(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var got SlackWebhookPayload
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("method = %s, want POST", r.Method)
			}
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("content type = %q", ct)
			}
			body, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(body, &got); err != nil {
				t.Errorf("decode payload: %v", err)
			}
			_, _ = w.Write([]byte("ok"))
		}))
		defer srv.Close()

		n := NewSlackNotifier(testWebhookConfig(srv.URL))
		if err := n.NotifyChange(context.Background(), NewMessage(testSource(), testChange(true))); err != nil {
			t.Fatalf("NotifyChange() error = %v", err)
		}
		if got.Text == "" || len(got.Blocks) != 2 {
			t.Errorf("server received %+v", got)
		}
	})

	t.Run("server error is retried", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		n := NewSlackNotifier(testWebhookConfig(srv.URL))
		if err := n.NotifyChange(context.Background(), NewMessage(testSource(), testChange(true))); err != nil {
			t.Fatalf("NotifyChange() error = %v", err)
		}
		if calls.Load() != 2 {
			t.Errorf("calls = %d, want 2", calls.Load())
		}
	})

	t.Run("client error is not retried", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("invalid_payload"))
		}))
		defer srv.Close()

		n := NewSlackNotifier(testWebhookConfig(srv.URL))
		err := n.NotifyChange(context.Background(), NewMessage(testSource(), testChange(true)))
		var clientErr *ClientError
		if !errors.As(err, &clientErr) {
			t.Fatalf("expected ClientError, got %v", err)
		}
		if clientErr.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d", clientErr.StatusCode)
		}
		if calls.Load() != 1 {
			t.Errorf("calls = %d, want 1", calls.Load())
		}
	})

	t.Run("rate limit waits for retry-after", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) == 1 {
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		n := NewSlackNotifier(testWebhookConfig(srv.URL))
		start := time.Now()
		if err := n.NotifyChange(context.Background(), NewMessage(testSource(), testChange(true))); err != nil {
			t.Fatalf("NotifyChange() error = %v", err)
		}
		if elapsed := time.Since(start); elapsed < time.Second {
			t.Errorf("retry after 429 came too early: %v", elapsed)
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		n := NewSlackNotifier(testWebhookConfig(srv.URL))
		err := n.NotifyChange(context.Background(), NewMessage(testSource(), testChange(true)))
		var serverErr *ServerError
		if !errors.As(err, &serverErr) {
			t.Fatalf("expected ServerError, got %v", err)
		}
		if !strings.Contains(err.Error(), "after 2 attempts") {
			t.Errorf("error = %v", err)
		}
		if calls.Load() != 2 {
			t.Errorf("calls = %d, want 2", calls.Load())
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		n := NewSlackNotifier(testWebhookConfig(srv.URL))
		err := n.NotifyChange(ctx, NewMessage(testSource(), testChange(true)))
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}
