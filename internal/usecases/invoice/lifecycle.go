package invoice

import (
	"context"
	"fmt"

	"github.com/admin/tg-bots/invoice-bot/internal/domain"
)

// CancelInvoice отменяет pending-инвойс и уведомляет получателя.
// Отмена терминального инвойса не ошибка, а no-op с соответствующим исходом
func (s *Service) CancelInvoice(ctx context.Context, invoiceID string, adminID int64) (domain.CancelOutcome, error) {
	outcome, err := s.InvoiceRepo.Cancel(ctx, invoiceID)
	if err != nil {
		return outcome, fmt.Errorf("failed to cancel invoice: %w", err)
	}
	if outcome != domain.CancelOutcomeCancelled {
		return outcome, nil
	}

	s.Log.Info("invoice cancelled by admin",
		"invoice_id", invoiceID,
		"admin_id", adminID,
	)

	inv, recipient, err := s.InvoiceRepo.GetWithRecipient(ctx, invoiceID)
	if err != nil {
		s.Log.Warn("failed to load cancelled invoice for notification",
			"error", err,
			"invoice_id", invoiceID,
		)
		return outcome, nil
	}

	if inv.PresentationMessageID != nil {
		if err := s.Notifier.RemovePaymentButtons(ctx, inv); err != nil {
			s.Log.Warn("failed to remove payment buttons",
				"error", err,
				"invoice_id", invoiceID,
			)
		}
	}
	if recipient != nil {
		if err := s.Notifier.NotifyClientInvoiceCancelled(ctx, inv, recipient); err != nil {
			s.Log.Warn("failed to notify client about cancellation",
				"error", err,
				"invoice_id", invoiceID,
			)
		}
	}
	return outcome, nil
}

// History возвращает инвойсы получателя, новые первыми
func (s *Service) History(ctx context.Context, recipientTelegramID int64) ([]domain.Invoice, error) {
	return s.InvoiceRepo.ListByRecipient(ctx, recipientTelegramID)
}

// Get возвращает инвойс по идентификатору
func (s *Service) Get(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	return s.InvoiceRepo.GetByInvoiceID(ctx, invoiceID)
}

// GetByExternalID возвращает инвойс по идентификатору счёта у провайдера.
// Нужен вебхукам, которые не передают наш invoice_id
func (s *Service) GetByExternalID(ctx context.Context, externalID string) (*domain.Invoice, error) {
	return s.InvoiceRepo.GetByExternalID(ctx, externalID)
}

// ListPending возвращает все неоплаченные инвойсы
func (s *Service) ListPending(ctx context.Context) ([]domain.Invoice, error) {
	return s.InvoiceRepo.ListPending(ctx)
}

// ExpireStale переводит просроченные pending-инвойсы в expired.
// Гонка с параллельной оплатой разрешается в пользу оплаты: UPDATE затрагивает
// только строки, ещё остающиеся pending
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	deadline := s.now().Add(-s.InvoiceTTL)
	count, err := s.InvoiceRepo.ExpireOlderThan(ctx, deadline)
	if err != nil {
		return 0, fmt.Errorf("failed to expire invoices: %w", err)
	}
	if count > 0 {
		s.Log.Info("stale invoices expired", "count", count)
	}
	return count, nil
}
