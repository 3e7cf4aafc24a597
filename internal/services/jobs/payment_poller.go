package jobs

import (
	"context"
	"log/slog"
	"time"

	invoiceUsecase "github.com/admin/tg-bots/invoice-bot/internal/usecases/invoice"
)

const (
	paymentPollerName            = "payment-poller"
	defaultPaymentPollerInterval = 60 * time.Second
)

// PaymentPoller джоба-страховка на случай потерянных вебхуков: раз в минуту
// опрашивает провайдеров о состоянии pending-инвойсов
type PaymentPoller struct {
	invoiceService *invoiceUsecase.Service
	interval       time.Duration
	log            *slog.Logger
}

func NewPaymentPoller(
	invoiceService *invoiceUsecase.Service,
	interval time.Duration,
	log *slog.Logger,
) *PaymentPoller {
	if interval <= 0 {
		interval = defaultPaymentPollerInterval
	}
	return &PaymentPoller{
		invoiceService: invoiceService,
		interval:       interval,
		log:            log,
	}
}

func (j *PaymentPoller) Name() string {
	return paymentPollerName
}

func (j *PaymentPoller) NextRun(now time.Time) time.Time {
	return now.Add(j.interval)
}

// Run один проход по pending-инвойсам
func (j *PaymentPoller) Run(ctx context.Context) error {
	return j.invoiceService.PollPendingCharges(ctx)
}
