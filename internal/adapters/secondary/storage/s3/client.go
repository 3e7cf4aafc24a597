package s3

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/admin/tg-bots/invoice-bot/internal/domain"
	"github.com/admin/tg-bots/invoice-bot/internal/ports/archive"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"log/slog"
)

// Client архив сырых тел вебхуков в объектном хранилище.
// Реализует archive.IWebhookArchive
type Client struct {
	client *minio.Client
	bucket string
	log    *slog.Logger
}

// NewClient создаёт новый S3 клиент
func NewClient(client *minio.Client, bucket string, log *slog.Logger) archive.IWebhookArchive {
	return &Client{
		client: client,
		bucket: bucket,
		log:    log,
	}
}

// Store сохраняет тело вебхука под ключом
// <provider>/<дата>/<время>_<uuid>.json. UUID в имени спасает от коллизий
// при шквале повторных доставок в одну секунду
func (c *Client) Store(ctx context.Context, provider domain.PaymentProvider, receivedAt time.Time, body []byte) error {
	key := fmt.Sprintf("%s/%s/%s_%s.json",
		provider,
		receivedAt.UTC().Format("2006-01-02"),
		receivedAt.UTC().Format("150405"),
		uuid.New().String()[:8])

	_, err := c.client.PutObject(ctx, c.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to store webhook body %s: %w", key, err)
	}

	c.log.Debug("webhook body archived", "key", key, "size", len(body))
	return nil
}
