package invoice

import (
	"time"

	"log/slog"

	"github.com/admin/tg-bots/invoice-bot/internal/domain"
	"github.com/admin/tg-bots/invoice-bot/internal/ports/events"
	paymentPort "github.com/admin/tg-bots/invoice-bot/internal/ports/payment"
	"github.com/admin/tg-bots/invoice-bot/internal/ports/repository"
	"github.com/admin/tg-bots/invoice-bot/internal/ports/service"
)

const defaultInvoiceTTL = time.Hour

// Service движок жизненного цикла инвойсов. Все подтверждения оплаты из
// любых источников (вебхуки, поллер, ручная команда) проходят через
// ConfirmPayment, уведомления отправляются ровно один раз на платёж
type Service struct {
	UserRepo    repository.IUserRepo
	InvoiceRepo repository.IInvoiceRepo
	Providers   map[domain.PaymentProvider]paymentPort.IPaymentProvider
	Notifier    service.INotifier
	Alerter     service.IAlerterService      // может быть nil
	Events      events.IPaymentEventProducer // может быть nil
	InvoiceTTL  time.Duration
	Log         *slog.Logger

	now func() time.Time
}

func New(
	userRepo repository.IUserRepo,
	invoiceRepo repository.IInvoiceRepo,
	providers map[domain.PaymentProvider]paymentPort.IPaymentProvider,
	notifier service.INotifier,
	alerter service.IAlerterService,
	producer events.IPaymentEventProducer,
	invoiceTTL time.Duration,
	log *slog.Logger,
) *Service {
	if invoiceTTL <= 0 {
		invoiceTTL = defaultInvoiceTTL
	}
	return &Service{
		UserRepo:    userRepo,
		InvoiceRepo: invoiceRepo,
		Providers:   providers,
		Notifier:    notifier,
		Alerter:     alerter,
		Events:      producer,
		InvoiceTTL:  invoiceTTL,
		Log:         log,
		now:         time.Now,
	}
}

// providerByCategory находит провайдера для платёжной категории
func (s *Service) providerByCategory(category domain.PaymentCategory) (paymentPort.IPaymentProvider, bool) {
	for _, p := range s.Providers {
		if p.Category() == category {
			return p, true
		}
	}
	return nil, false
}
