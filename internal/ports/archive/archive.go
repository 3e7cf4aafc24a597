package archive

import (
	"context"
	"time"

	"github.com/admin/tg-bots/invoice-bot/internal/domain"
)

// IWebhookArchive архив сырых тел вебхуков в объектном хранилище - для
// разборов спорных платежей
type IWebhookArchive interface {
	Store(ctx context.Context, provider domain.PaymentProvider, receivedAt time.Time, body []byte) error
}
