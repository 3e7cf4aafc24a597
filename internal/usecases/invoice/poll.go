package invoice

import (
	"context"
	"errors"
	"fmt"

	"github.com/admin/tg-bots/invoice-bot/internal/domain"
	paymentPort "github.com/admin/tg-bots/invoice-bot/internal/ports/payment"
)

// PollPendingCharges опрашивает провайдеров о состоянии pending-инвойсов.
// Страховка на случай потерянных вебхуков: даже при нуле доставленных
// уведомлений оплата будет применена на следующем тике. Ошибка по одному
// инвойсу не прерывает обход остальных
func (s *Service) PollPendingCharges(ctx context.Context) error {
	pending, err := s.InvoiceRepo.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pending invoices: %w", err)
	}

	checked, applied := 0, 0
	for i := range pending {
		inv := &pending[i]
		wasChecked, result, err := s.checkCharge(ctx, inv)
		if err != nil {
			s.Log.Warn("failed to check charge status",
				"error", err,
				"invoice_id", inv.InvoiceID,
			)
			continue
		}
		if wasChecked {
			checked++
		}
		if result != nil && result.Outcome == domain.ApplyOutcomeApplied {
			applied++
		}
	}

	if checked > 0 || applied > 0 {
		s.Log.Info("pending charges polled",
			"pending", len(pending),
			"checked", checked,
			"applied", applied,
		)
	}
	return nil
}

// CheckCharge проверяет оплату одного инвойса по запросу (кнопка "Проверить
// оплату"). Возвращает актуальное состояние инвойса
func (s *Service) CheckCharge(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	inv, err := s.InvoiceRepo.GetByInvoiceID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status != domain.InvoiceStatusPending {
		return inv, nil
	}

	if _, result, err := s.checkCharge(ctx, inv); err != nil {
		return nil, err
	} else if result != nil && result.Invoice != nil {
		return result.Invoice, nil
	}
	return inv, nil
}

// checkCharge спрашивает провайдера о состоянии счёта и применяет оплату,
// если провайдер её подтвердил. Инвойсы без провайдера или внешнего счёта,
// как и провайдеры без API статуса, молча пропускаются
func (s *Service) checkCharge(ctx context.Context, inv *domain.Invoice) (bool, *domain.ApplyResult, error) {
	if inv.Provider == nil || inv.ExternalInvoiceID == nil || *inv.ExternalInvoiceID == "" {
		return false, nil, nil
	}
	provider, ok := s.Providers[*inv.Provider]
	if !ok {
		return false, nil, nil
	}

	status, err := provider.CheckStatus(ctx, *inv.ExternalInvoiceID)
	if err != nil {
		if errors.Is(err, paymentPort.ErrStatusNotSupported) {
			return false, nil, nil
		}
		return false, nil, fmt.Errorf("provider %s: %w", *inv.Provider, err)
	}

	if !status.Paid {
		return true, nil, nil
	}

	// transaction_id поллера - сохранённый внешний идентификатор счёта;
	// тот же ключ нормализации использует и вебхук, поэтому оба источника
	// схлопываются в одну запись платежа
	conf := domain.PaymentConfirmation{
		InvoiceID:     inv.InvoiceID,
		TransactionID: *inv.ExternalInvoiceID,
		Category:      provider.Category(),
		Provider:      provider.Name(),
		Method:        status.Method,
	}
	result, err := s.ConfirmPayment(ctx, conf)
	if err != nil {
		return true, nil, fmt.Errorf("failed to confirm polled payment: %w", err)
	}
	return true, result, nil
}
