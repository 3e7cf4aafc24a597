package jobs

import (
	"context"
	"log/slog"
	"time"

	invoiceUsecase "github.com/admin/tg-bots/invoice-bot/internal/usecases/invoice"
)

const (
	invoiceExpirerName            = "invoice-expirer"
	defaultInvoiceExpirerInterval = 5 * time.Minute
)

// InvoiceExpirer джоба переводит просроченные pending-инвойсы в expired
type InvoiceExpirer struct {
	invoiceService *invoiceUsecase.Service
	interval       time.Duration
	log            *slog.Logger
}

func NewInvoiceExpirer(
	invoiceService *invoiceUsecase.Service,
	interval time.Duration,
	log *slog.Logger,
) *InvoiceExpirer {
	if interval <= 0 {
		interval = defaultInvoiceExpirerInterval
	}
	return &InvoiceExpirer{
		invoiceService: invoiceService,
		interval:       interval,
		log:            log,
	}
}

func (j *InvoiceExpirer) Name() string {
	return invoiceExpirerName
}

func (j *InvoiceExpirer) NextRun(now time.Time) time.Time {
	return now.Add(j.interval)
}

// Run один проход свипера
func (j *InvoiceExpirer) Run(ctx context.Context) error {
	_, err := j.invoiceService.ExpireStale(ctx)
	return err
}
