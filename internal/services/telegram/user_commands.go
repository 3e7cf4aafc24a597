package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/admin/tg-bots/invoice-bot/internal/domain"
)

var statusBadge = map[domain.InvoiceStatus]string{
	domain.InvoiceStatusPending:   "⏳ Ожидает оплаты",
	domain.InvoiceStatusPaid:      "✅ Оплачен",
	domain.InvoiceStatusExpired:   "⌛️ Истек",
	domain.InvoiceStatusCancelled: "🚫 Отменен",
}

func (s *Service) handleUserCommand(ctx context.Context, user *domain.User, command string) error {
	switch command {
	case "start":
		s.cmdStart(ctx, user)
	case "help":
		s.cmdHelp(ctx, user)
	case "history":
		s.cmdHistory(ctx, user)
	default:
		s.Log.Debug("unknown command ignored",
			"command", command,
			"telegram_id", user.TelegramID,
		)
	}
	return nil
}

func (s *Service) cmdStart(ctx context.Context, user *domain.User) {
	text := fmt.Sprintf(`Привет, %s! 👋

Добро пожаловать в платёжного бота.

Здесь вы можете:
• Получать счета за услуги от администраторов
• Оплачивать их удобным способом
• Просматривать историю платежей (/history)

📋 После получения инвойса вы увидите кнопку для оплаты.

⚡️ Процесс оплаты быстрый и безопасный.

Если у вас есть вопросы, обращайтесь в поддержку! 💬`, user.FirstName)

	s.reply(ctx, user.TelegramID, text)
	s.Log.Info("user started the bot", "telegram_id", user.TelegramID)
}

func (s *Service) cmdHelp(ctx context.Context, user *domain.User) {
	s.reply(ctx, user.TelegramID, `📚 Справка

💰 Оплата счетов
После получения инвойса нажмите кнопку «Оплатить» и следуйте инструкциям.
Кнопка «Проверить оплату» под инвойсом покажет актуальный статус.

✅ После оплаты вы получите автоматическое подтверждение.

Доступные команды:
/start - Начать работу с ботом
/help - Показать эту справку
/history - История ваших инвойсов`)
}

func (s *Service) cmdHistory(ctx context.Context, user *domain.User) {
	invoices, err := s.Invoices.History(ctx, user.TelegramID)
	if err != nil {
		s.Log.Error("failed to load invoice history",
			"error", err,
			"telegram_id", user.TelegramID,
		)
		s.reply(ctx, user.TelegramID, "❌ Не удалось загрузить историю, попробуйте позже")
		return
	}
	if len(invoices) == 0 {
		s.reply(ctx, user.TelegramID, "У вас пока нет инвойсов")
		return
	}

	var b strings.Builder
	b.WriteString("📋 Ваши инвойсы:\n\n")
	for i := range invoices {
		inv := &invoices[i]
		badge, ok := statusBadge[inv.Status]
		if !ok {
			badge = string(inv.Status)
		}
		fmt.Fprintf(&b, "%s | %s\n%s | %s\n\n",
			inv.InvoiceID,
			inv.FormatAmount(),
			badge,
			inv.CreatedAt.Format("02.01.2006 15:04"),
		)
	}
	s.reply(ctx, user.TelegramID, b.String())
}
