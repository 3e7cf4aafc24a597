package httpretry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"log/slog"
)

const (
	defaultMaxRetries = 2
	defaultBackoff    = 2 * time.Second
)

// RequestFunc строит новый запрос для каждой попытки (тело нельзя
// переиспользовать между попытками)
type RequestFunc func(ctx context.Context) (*http.Request, error)

// Response прочитанный ответ провайдера
type Response struct {
	StatusCode int
	Body       []byte
}

// Client HTTP-клиент с ретраями для вызовов платёжных провайдеров.
// Ретраятся только транспортные ошибки и 5xx; бизнес-отказы (4xx) не
// ретраятся - повтор не изменит исход и рискует дублем списания
type Client struct {
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	log        *slog.Logger
}

func New(timeout time.Duration, log *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoff,
		log:        log,
	}
}

// Do выполняет запрос с ретраями и возвращает прочитанный ответ
func (c *Client) Do(ctx context.Context, build RequestFunc) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff):
			}
		}

		req, err := build(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			c.log.Warn("provider request failed, will retry",
				"error", err,
				"attempt", attempt+1,
				"url", req.URL.String(),
			)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response body: %w", err)
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("provider returned %d", resp.StatusCode)
			c.log.Warn("provider returned 5xx, will retry",
				"status_code", resp.StatusCode,
				"attempt", attempt+1,
				"url", req.URL.String(),
			)
			continue
		}

		return &Response{
			StatusCode: resp.StatusCode,
			Body:       body,
		}, nil
	}

	return nil, fmt.Errorf("all attempts exhausted: %w", lastErr)
}
