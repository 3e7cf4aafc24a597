package events

import (
	"context"

	"github.com/admin/tg-bots/invoice-bot/internal/domain"
)

// IPaymentEventProducer публикация событий о подтверждённых платежах для
// внешнего учёта. Fire-and-forget: ошибка публикации логируется и не
// откатывает смену статуса инвойса
type IPaymentEventProducer interface {
	PaymentConfirmed(ctx context.Context, invoice *domain.Invoice, payment *domain.Payment) error
	Close() error
}
