package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/admin/tg-bots/invoice-bot/internal/domain"
)

const checkPaymentPrefix = "check_payment:"

// HandleCallback обрабатывает нажатия inline-кнопок
func (s *Service) HandleCallback(ctx context.Context, query *domain.CallbackQuery) error {
	if query == nil || query.From == nil {
		return fmt.Errorf("callback query is nil or has no from")
	}

	user, err := s.Users.Upsert(ctx, query.From)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	if user.IsBlocked {
		return s.answerCallback(ctx, query.ID, "", false)
	}
	if s.isRateLimited(ctx, user.TelegramID) {
		return s.answerCallback(ctx, query.ID, "⏳ Слишком часто, подождите немного", false)
	}

	if query.Data == nil {
		return s.answerCallback(ctx, query.ID, "", false)
	}
	data := *query.Data

	if invoiceID, ok := strings.CutPrefix(data, checkPaymentPrefix); ok {
		return s.callbackCheckPayment(ctx, user, query.ID, invoiceID)
	}

	s.Log.Warn("unknown callback data", "data", data, "telegram_id", user.TelegramID)
	return s.answerCallback(ctx, query.ID, "⚠️ Неизвестная команда", false)
}

// callbackCheckPayment кнопка "Проверить оплату": спрашивает провайдера и
// применяет оплату, если она уже прошла
func (s *Service) callbackCheckPayment(ctx context.Context, user *domain.User, callbackID, invoiceID string) error {
	inv, err := s.Invoices.CheckCharge(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, domain.ErrInvoiceNotFound) {
			return s.answerCallback(ctx, callbackID, "❌ Инвойс не найден", true)
		}
		s.Log.Error("failed to check charge from callback",
			"error", err,
			"invoice_id", invoiceID,
			"telegram_id", user.TelegramID,
		)
		return s.answerCallback(ctx, callbackID, "❌ Не удалось проверить оплату, попробуйте позже", true)
	}

	switch inv.Status {
	case domain.InvoiceStatusPaid:
		return s.answerCallback(ctx, callbackID, "✅ Оплата получена, спасибо!", true)
	case domain.InvoiceStatusPending:
		return s.answerCallback(ctx, callbackID, "⏳ Оплата пока не найдена. Если вы уже оплатили, подождите пару минут.", true)
	case domain.InvoiceStatusExpired:
		return s.answerCallback(ctx, callbackID, "⌛️ Срок оплаты инвойса истёк", true)
	case domain.InvoiceStatusCancelled:
		return s.answerCallback(ctx, callbackID, "🚫 Инвойс отменён", true)
	default:
		return s.answerCallback(ctx, callbackID, "", false)
	}
}

func (s *Service) answerCallback(ctx context.Context, callbackID, text string, showAlert bool) error {
	if err := s.Client.AnswerCallbackQuery(ctx, callbackID, text, showAlert); err != nil {
		s.Log.Error("failed to answer callback query",
			"error", err,
			"callback_id", callbackID,
		)
		return fmt.Errorf("failed to answer callback query: %w", err)
	}
	return nil
}
