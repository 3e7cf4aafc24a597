package repository

import (
	"context"
	"time"

	"github.com/admin/tg-bots/invoice-bot/internal/domain"
)

// IInvoiceRepo интерфейс хранилища инвойсов и платежей.
// Инварианты уникальности (invoice_id, transaction_id) обеспечиваются
// уникальными индексами в БД, а не блокировками в процессе
type IInvoiceRepo interface {
	Create(ctx context.Context, invoice *domain.Invoice) error

	// SetChargeDetails записывает payment_url и внешний идентификатор после
	// успешного создания счёта у провайдера. Вызывается и повторно, когда
	// админ перевыпускает ссылку для деградированного инвойса
	SetChargeDetails(ctx context.Context, invoiceID, paymentURL, externalID string, provider domain.PaymentProvider) error

	SetPresentationMessageID(ctx context.Context, invoiceID string, messageID int64) error

	GetByInvoiceID(ctx context.Context, invoiceID string) (*domain.Invoice, error)

	// GetByExternalID ищет инвойс по идентификатору счёта в системе провайдера.
	// Нужен вебхукам, которые не знают наш invoice_id
	GetByExternalID(ctx context.Context, externalID string) (*domain.Invoice, error)
	GetWithRecipient(ctx context.Context, invoiceID string) (*domain.Invoice, *domain.User, error)
	ListPending(ctx context.Context) ([]domain.Invoice, error)
	ListByRecipient(ctx context.Context, telegramID int64) ([]domain.Invoice, error)

	// ApplyPayment единственный путь перевода инвойса в paid. Выполняется в
	// одной транзакции; безопасен при параллельных и повторных доставках
	// одного платежа из разных источников
	ApplyPayment(ctx context.Context, conf domain.PaymentConfirmation) (*domain.ApplyResult, error)

	// Cancel переводит pending-инвойс в cancelled
	Cancel(ctx context.Context, invoiceID string) (domain.CancelOutcome, error)

	// ExpireOlderThan массово переводит pending-инвойсы, созданные до
	// deadline, в expired; возвращает число затронутых
	ExpireOlderThan(ctx context.Context, deadline time.Time) (int64, error)
}
