package invoice

import (
	"context"
	"fmt"

	"github.com/admin/tg-bots/invoice-bot/internal/domain"
	"github.com/google/uuid"
)

// ConfirmPayment применяет подтверждение оплаты из любого источника.
// Вся идемпотентность обеспечивается хранилищем (ApplyPayment); уведомления
// и событие в шину уходят только при исходе Applied, поэтому дубликаты
// доставки никогда не порождают повторных сообщений
func (s *Service) ConfirmPayment(ctx context.Context, conf domain.PaymentConfirmation) (*domain.ApplyResult, error) {
	result, err := s.InvoiceRepo.ApplyPayment(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to apply payment: %w", err)
	}

	switch result.Outcome {
	case domain.ApplyOutcomeApplied:
		s.Log.Info("payment confirmed",
			"invoice_id", conf.InvoiceID,
			"transaction_id", result.Payment.TransactionID,
			"provider", conf.Provider,
		)
		s.notifyPaymentApplied(ctx, result)
		s.publishPaymentEvent(ctx, result)

	case domain.ApplyOutcomeAlreadyApplied:
		s.Log.Info("duplicate payment confirmation ignored",
			"invoice_id", conf.InvoiceID,
			"transaction_id", conf.TransactionID,
			"provider", conf.Provider,
		)

	case domain.ApplyOutcomeAlreadyTerminal:
		// деньги пришли по отменённому или истёкшему счёту, нужен ручной разбор
		s.Log.Warn("payment arrived for terminal invoice",
			"invoice_id", conf.InvoiceID,
			"status", result.Invoice.Status,
			"transaction_id", conf.TransactionID,
		)
		s.alert(ctx, fmt.Sprintf("⚠️ Оплата по терминальному инвойсу %s (статус %s), transaction_id %s. Требуется ручной разбор.",
			conf.InvoiceID, result.Invoice.Status, conf.TransactionID))

	case domain.ApplyOutcomeNotFound:
		s.Log.Warn("payment confirmation for unknown invoice",
			"invoice_id", conf.InvoiceID,
			"transaction_id", conf.TransactionID,
			"provider", conf.Provider,
		)
	}

	return result, nil
}

// MarkPaidManually ручное подтверждение оплаты админом - аварийный путь на
// случай, когда и вебхук, и поллер не сработали. Синтетический transaction_id
// делает операцию идемпотентной лишь в рамках одного вызова; повторный вызов
// ляжет в ветку AlreadyApplied уже по статусу paid
func (s *Service) MarkPaidManually(ctx context.Context, invoiceID string, adminID int64) (*domain.ApplyResult, error) {
	inv, err := s.InvoiceRepo.GetByInvoiceID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	category := domain.PaymentCategoryCrypto
	if inv.Provider != nil {
		if p, ok := s.Providers[*inv.Provider]; ok {
			category = p.Category()
		}
	}

	conf := domain.PaymentConfirmation{
		InvoiceID:     invoiceID,
		TransactionID: fmt.Sprintf("MANUAL-%s", uuid.New().String()),
		Category:      category,
		Provider:      domain.PaymentProviderManual,
		Method:        "manual",
	}

	s.Log.Info("manual payment confirmation",
		"invoice_id", invoiceID,
		"admin_id", adminID,
	)

	return s.ConfirmPayment(ctx, conf)
}

// notifyPaymentApplied отправляет уведомления после первого применения
// платежа. Сбои доставки логируются и не влияют на состояние инвойса
func (s *Service) notifyPaymentApplied(ctx context.Context, result *domain.ApplyResult) {
	inv := result.Invoice

	if result.Recipient != nil {
		if err := s.Notifier.NotifyClientPaymentSuccess(ctx, inv, result.Recipient); err != nil {
			s.Log.Warn("failed to notify client about payment",
				"error", err,
				"invoice_id", inv.InvoiceID,
			)
		}
	}

	if err := s.Notifier.NotifyAdminsPaymentReceived(ctx, inv, result.Recipient); err != nil {
		s.Log.Warn("failed to notify admins about payment",
			"error", err,
			"invoice_id", inv.InvoiceID,
		)
	}

	if inv.PresentationMessageID != nil {
		if err := s.Notifier.RemovePaymentButtons(ctx, inv); err != nil {
			s.Log.Warn("failed to remove payment buttons",
				"error", err,
				"invoice_id", inv.InvoiceID,
			)
		}
	}
}

// publishPaymentEvent публикует событие в шину для внешнего учёта
func (s *Service) publishPaymentEvent(ctx context.Context, result *domain.ApplyResult) {
	if s.Events == nil {
		return
	}
	if err := s.Events.PaymentConfirmed(ctx, result.Invoice, result.Payment); err != nil {
		s.Log.Warn("failed to publish payment event",
			"error", err,
			"invoice_id", result.Invoice.InvoiceID,
		)
	}
}
