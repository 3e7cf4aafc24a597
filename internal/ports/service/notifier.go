package service

import (
	"context"

	"github.com/admin/tg-bots/invoice-bot/internal/domain"
)

// INotifier отправка сообщений по результатам жизненного цикла инвойса.
// Вызывается только при первом применении платежа (Applied), никогда при
// дубликатах; сбои доставки логируются и не блокируют смену статуса
type INotifier interface {
	// SendInvoice отправляет клиенту карточку инвойса с кнопкой оплаты и
	// возвращает message_id отправленного сообщения
	SendInvoice(ctx context.Context, invoice *domain.Invoice, recipient *domain.User) (int64, error)

	NotifyClientPaymentSuccess(ctx context.Context, invoice *domain.Invoice, recipient *domain.User) error

	// NotifyAdminsPaymentReceived рассылает уведомление об оплате всем админам
	NotifyAdminsPaymentReceived(ctx context.Context, invoice *domain.Invoice, recipient *domain.User) error

	// RemovePaymentButtons убирает кнопки оплаты с карточки инвойса
	RemovePaymentButtons(ctx context.Context, invoice *domain.Invoice) error

	NotifyClientInvoiceCancelled(ctx context.Context, invoice *domain.Invoice, recipient *domain.User) error
}
