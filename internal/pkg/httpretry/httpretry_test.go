package httpretry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"log/slog"
)

func testClient() *Client {
	c := New(5*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.backoff = time.Millisecond
	return c
}

func getRequest(url string) RequestFunc {
	return func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}
}

func TestDo(t *testing.T) {
	t.Run("успех с первой попытки", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			w.Write([]byte("ok"))
		}))
		defer srv.Close()

		resp, err := testClient().Do(context.Background(), getRequest(srv.URL))
		if err != nil {
			t.Fatalf("Do failed: %v", err)
		}
		if resp.StatusCode != http.StatusOK || string(resp.Body) != "ok" {
			t.Errorf("unexpected response: %d %q", resp.StatusCode, resp.Body)
		}
		if hits.Load() != 1 {
			t.Errorf("expected 1 request, got %d", hits.Load())
		}
	})

	t.Run("5xx ретраится до успеха", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if hits.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte("ok"))
		}))
		defer srv.Close()

		resp, err := testClient().Do(context.Background(), getRequest(srv.URL))
		if err != nil {
			t.Fatalf("Do failed: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected 200 after retries, got %d", resp.StatusCode)
		}
		if hits.Load() != 3 {
			t.Errorf("expected 3 requests, got %d", hits.Load())
		}
	})

	t.Run("4xx не ретраится", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"error":"bad amount"}`))
		}))
		defer srv.Close()

		resp, err := testClient().Do(context.Background(), getRequest(srv.URL))
		if err != nil {
			t.Fatalf("4xx is a response, not an error: %v", err)
		}
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Errorf("got %d", resp.StatusCode)
		}
		if hits.Load() != 1 {
			t.Errorf("4xx must not be retried, got %d requests", hits.Load())
		}
	})

	t.Run("все попытки исчерпаны", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		if _, err := testClient().Do(context.Background(), getRequest(srv.URL)); err == nil {
			t.Fatal("expected error after exhausting retries")
		}
		if hits.Load() != 3 {
			t.Errorf("expected 3 attempts, got %d", hits.Load())
		}
	})

	t.Run("отмена контекста прерывает ретраи", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		c := New(5*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
		c.backoff = time.Minute

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			_, err := c.Do(ctx, getRequest(srv.URL))
			done <- err
		}()

		time.Sleep(50 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			if err == nil {
				t.Error("expected context error")
			}
		case <-time.After(5 * time.Second):
			t.Fatal("Do did not return after context cancellation")
		}
	})
}
