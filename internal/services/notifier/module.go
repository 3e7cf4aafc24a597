package notifier

import (
	"context"
	"fmt"
	"html"

	"log/slog"

	"github.com/admin/tg-bots/invoice-bot/internal/adapters/secondary/telegram"
	"github.com/admin/tg-bots/invoice-bot/internal/domain"
	"github.com/admin/tg-bots/invoice-bot/internal/ports/service"
)

// Service отправляет уведомления по жизненному циклу инвойсов.
// Реализует service.INotifier
type Service struct {
	client   *telegram.Client
	adminIDs []int64
	log      *slog.Logger
}

func New(client *telegram.Client, adminIDs []int64, log *slog.Logger) service.INotifier {
	return &Service{
		client:   client,
		adminIDs: adminIDs,
		log:      log,
	}
}

// paymentKeyboard inline-клавиатура карточки инвойса
func paymentKeyboard(invoice *domain.Invoice) map[string]interface{} {
	var rows [][]map[string]interface{}
	if invoice.PaymentURL != nil && *invoice.PaymentURL != "" {
		rows = append(rows, []map[string]interface{}{
			{"text": "💳 Оплатить", "url": *invoice.PaymentURL},
		})
	}
	rows = append(rows, []map[string]interface{}{
		{"text": "🔄 Проверить оплату", "callback_data": "check_payment:" + invoice.InvoiceID},
	})
	return map[string]interface{}{"inline_keyboard": rows}
}

// SendInvoice отправляет клиенту карточку инвойса с кнопкой оплаты
func (s *Service) SendInvoice(ctx context.Context, invoice *domain.Invoice, recipient *domain.User) (int64, error) {
	text := fmt.Sprintf(`📋 <b>Инвойс #%s</b>

💰 <b>Сумма:</b> %s
📝 <b>Услуга:</b> %s

Для оплаты нажмите кнопку ниже:`,
		invoice.InvoiceID,
		invoice.FormatAmount(),
		html.EscapeString(invoice.ServiceDescription))

	messageID, err := s.client.SendMessageWithKeyboard(ctx, recipient.TelegramID, text, paymentKeyboard(invoice))
	if err != nil {
		return 0, fmt.Errorf("failed to send invoice message: %w", err)
	}

	s.log.Info("invoice sent to client",
		"invoice_id", invoice.InvoiceID,
		"recipient_id", recipient.TelegramID,
		"message_id", messageID,
	)
	return messageID, nil
}

// NotifyClientPaymentSuccess уведомляет клиента об успешной оплате
func (s *Service) NotifyClientPaymentSuccess(ctx context.Context, invoice *domain.Invoice, recipient *domain.User) error {
	text := fmt.Sprintf(`✅ <b>Оплата получена!</b>

📋 <b>Инвойс:</b> <code>%s</code>
💰 <b>Сумма:</b> %s
📝 <b>Услуга:</b> %s

Благодарим за оплату! 🎉

Наши менеджеры свяжутся с вами в ближайшее время для выполнения услуги.`,
		invoice.InvoiceID,
		invoice.FormatAmount(),
		html.EscapeString(invoice.ServiceDescription))

	if _, err := s.client.SendMessage(ctx, recipient.TelegramID, text); err != nil {
		return fmt.Errorf("failed to notify client: %w", err)
	}

	s.log.Info("payment success notification sent",
		"invoice_id", invoice.InvoiceID,
		"recipient_id", recipient.TelegramID,
	)
	return nil
}

// NotifyAdminsPaymentReceived рассылает уведомление об оплате всем админам.
// Сбой доставки одному админу не прерывает рассылку остальным
func (s *Service) NotifyAdminsPaymentReceived(ctx context.Context, invoice *domain.Invoice, recipient *domain.User) error {
	client := "неизвестен"
	if recipient != nil {
		client = html.EscapeString(recipient.DisplayName())
	}

	text := fmt.Sprintf(`💰 <b>ПЛАТЕЖ ПОЛУЧЕН</b>

📋 <b>Invoice ID:</b> <code>%s</code>
👤 <b>Клиент:</b> %s
💵 <b>Сумма:</b> %s
📝 <b>Услуга:</b> %s

Необходимо выполнить услугу для клиента.`,
		invoice.InvoiceID,
		client,
		invoice.FormatAmount(),
		html.EscapeString(invoice.ServiceDescription))

	var failed int
	for _, adminID := range s.adminIDs {
		if _, err := s.client.SendMessage(ctx, adminID, text); err != nil {
			failed++
			s.log.Error("failed to notify admin",
				"error", err,
				"admin_id", adminID,
				"invoice_id", invoice.InvoiceID,
			)
		}
	}
	if failed == len(s.adminIDs) && len(s.adminIDs) > 0 {
		return fmt.Errorf("failed to notify any of %d admins", len(s.adminIDs))
	}
	return nil
}

// RemovePaymentButtons убирает кнопки оплаты с карточки инвойса
func (s *Service) RemovePaymentButtons(ctx context.Context, invoice *domain.Invoice) error {
	if invoice.PresentationMessageID == nil {
		return nil
	}
	if err := s.client.EditMessageReplyMarkup(ctx, invoice.RecipientID, *invoice.PresentationMessageID, nil); err != nil {
		return fmt.Errorf("failed to remove payment buttons: %w", err)
	}
	return nil
}

// NotifyClientInvoiceCancelled уведомляет клиента об отмене инвойса
func (s *Service) NotifyClientInvoiceCancelled(ctx context.Context, invoice *domain.Invoice, recipient *domain.User) error {
	text := fmt.Sprintf(`🚫 <b>Инвойс отменен</b>

📋 <b>Invoice ID:</b> <code>%s</code>

Счёт больше не действителен. Если у вас есть вопросы, обращайтесь в поддержку.`,
		invoice.InvoiceID)

	if _, err := s.client.SendMessage(ctx, recipient.TelegramID, text); err != nil {
		return fmt.Errorf("failed to notify client about cancellation: %w", err)
	}
	return nil
}
