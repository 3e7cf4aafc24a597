package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/admin/tg-bots/invoice-bot/internal/domain"
	invoiceUC "github.com/admin/tg-bots/invoice-bot/internal/usecases/invoice"
)

// handleAdminCommand роутит админские команды. Возвращает handled=false для
// команд, которые должны уйти в пользовательский роутер
func (s *Service) handleAdminCommand(ctx context.Context, admin *domain.User, command string, args []string) (bool, error) {
	switch command {
	case "invoice":
		s.cmdInvoice(ctx, admin, args)
	case "cancel":
		s.cmdCancel(ctx, admin, args)
	case "markpaid":
		s.cmdMarkPaid(ctx, admin, args)
	case "cardlink":
		s.cmdCardLink(ctx, admin, args)
	case "pending":
		s.cmdPending(ctx, admin)
	case "block":
		s.cmdSetBlocked(ctx, admin, args, true)
	case "unblock":
		s.cmdSetBlocked(ctx, admin, args, false)
	case "admin":
		s.cmdAdminHelp(ctx, admin)
	default:
		return false, nil
	}
	return true, nil
}

// cmdInvoice создаёт инвойс: /invoice <получатель> <сумма> <категория> <описание>
func (s *Service) cmdInvoice(ctx context.Context, admin *domain.User, args []string) {
	if len(args) < 4 {
		s.reply(ctx, admin.TelegramID,
			"❌ Использование: /invoice <user_id или @username> <сумма> <crypto|card_ru|card_int> <описание>\n\n"+
				"Пример: /invoice @username 150.50 crypto Размещение рекламы на 7 дней")
		return
	}

	amount, err := parseAmount(args[1])
	if err != nil {
		s.reply(ctx, admin.TelegramID, "❌ Некорректная сумма. Пример: 150 или 150.50")
		return
	}
	category, ok := parseCategory(args[2])
	if !ok {
		s.reply(ctx, admin.TelegramID, "❌ Категория должна быть одной из: crypto, card_ru, card_int")
		return
	}

	params := invoiceUC.CreateInvoiceParams{
		Amount:             amount,
		Currency:           "USD",
		ServiceDescription: strings.Join(args[3:], " "),
		Category:           category,
		CreatorAdminID:     admin.TelegramID,
	}
	if id, err := strconv.ParseInt(args[0], 10, 64); err == nil {
		params.RecipientTelegramID = id
	} else {
		params.RecipientUsername = args[0]
	}

	inv, err := s.Invoices.CreateInvoice(ctx, params)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.reply(ctx, admin.TelegramID,
				fmt.Sprintf("❌ Пользователь %s не найден. Попросите его сначала запустить бота (/start).", args[0]))
			return
		}
		s.replyError(ctx, admin.TelegramID, "❌ Не удалось создать инвойс", err)
		return
	}

	msg := fmt.Sprintf("✅ Инвойс %s создан и отправлен клиенту.\nСумма: %s", inv.InvoiceID, inv.FormatAmount())
	if inv.PaymentURL == nil {
		msg += "\n\n⚠️ Платёжная ссылка не выдана, перевыпустите её командой /cardlink либо дождитесь ручной оплаты."
	}
	s.reply(ctx, admin.TelegramID, msg)
}

// cmdCancel отменяет инвойс: /cancel <invoice_id>
func (s *Service) cmdCancel(ctx context.Context, admin *domain.User, args []string) {
	if len(args) < 1 {
		s.reply(ctx, admin.TelegramID, "❌ Использование: /cancel <invoice_id>")
		return
	}
	invoiceID := args[0]

	outcome, err := s.Invoices.CancelInvoice(ctx, invoiceID, admin.TelegramID)
	if err != nil {
		s.replyError(ctx, admin.TelegramID, "❌ Не удалось отменить инвойс", err)
		return
	}

	switch outcome {
	case domain.CancelOutcomeCancelled:
		s.reply(ctx, admin.TelegramID, fmt.Sprintf("✅ Инвойс %s отменен", invoiceID))
	case domain.CancelOutcomeAlreadyTerminal:
		s.reply(ctx, admin.TelegramID, "❌ Не удалось отменить инвойс (уже оплачен, истёк или отменён)")
	case domain.CancelOutcomeNotFound:
		s.reply(ctx, admin.TelegramID, fmt.Sprintf("❌ Инвойс %s не найден", invoiceID))
	}
}

// cmdMarkPaid ручное подтверждение оплаты: /markpaid <invoice_id>
func (s *Service) cmdMarkPaid(ctx context.Context, admin *domain.User, args []string) {
	if len(args) < 1 {
		s.reply(ctx, admin.TelegramID, "❌ Использование: /markpaid <invoice_id>")
		return
	}
	invoiceID := args[0]

	result, err := s.Invoices.MarkPaidManually(ctx, invoiceID, admin.TelegramID)
	if err != nil {
		if errors.Is(err, domain.ErrInvoiceNotFound) {
			s.reply(ctx, admin.TelegramID, fmt.Sprintf("❌ Инвойс %s не найден", invoiceID))
			return
		}
		s.replyError(ctx, admin.TelegramID, "❌ Не удалось подтвердить оплату", err)
		return
	}

	switch result.Outcome {
	case domain.ApplyOutcomeApplied:
		s.reply(ctx, admin.TelegramID, fmt.Sprintf("✅ Инвойс %s отмечен оплаченным, уведомления отправлены", invoiceID))
	case domain.ApplyOutcomeAlreadyApplied:
		s.reply(ctx, admin.TelegramID, fmt.Sprintf("ℹ️ Инвойс %s уже оплачен", invoiceID))
	case domain.ApplyOutcomeAlreadyTerminal:
		s.reply(ctx, admin.TelegramID,
			fmt.Sprintf("❌ Инвойс %s в статусе %s, оплату отметить нельзя", invoiceID, result.Invoice.Status))
	case domain.ApplyOutcomeNotFound:
		s.reply(ctx, admin.TelegramID, fmt.Sprintf("❌ Инвойс %s не найден", invoiceID))
	}
}

// cmdCardLink перевыпускает карточную ссылку:
// /cardlink <invoice_id> <card_ru|card_int> <email>
func (s *Service) cmdCardLink(ctx context.Context, admin *domain.User, args []string) {
	if len(args) < 3 {
		s.reply(ctx, admin.TelegramID,
			"❌ Использование: /cardlink <invoice_id> <card_ru|card_int> <email клиента>")
		return
	}
	category, ok := parseCategory(args[1])
	if !ok || category == domain.PaymentCategoryCrypto {
		s.reply(ctx, admin.TelegramID, "❌ Категория должна быть card_ru или card_int")
		return
	}

	inv, err := s.Invoices.CreateCardLink(ctx, args[0], category, args[2])
	if err != nil {
		if errors.Is(err, domain.ErrInvoiceNotFound) {
			s.reply(ctx, admin.TelegramID, fmt.Sprintf("❌ Инвойс %s не найден", args[0]))
			return
		}
		s.replyError(ctx, admin.TelegramID, "❌ Не удалось выпустить ссылку", err)
		return
	}

	s.reply(ctx, admin.TelegramID,
		fmt.Sprintf("✅ Ссылка на оплату для %s:\n%s", inv.InvoiceID, *inv.PaymentURL))
}

// cmdPending показывает список неоплаченных инвойсов
func (s *Service) cmdPending(ctx context.Context, admin *domain.User) {
	pending, err := s.Invoices.ListPending(ctx)
	if err != nil {
		s.replyError(ctx, admin.TelegramID, "❌ Не удалось получить список", err)
		return
	}
	if len(pending) == 0 {
		s.reply(ctx, admin.TelegramID, "Неоплаченных инвойсов нет")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "⏳ Неоплаченные инвойсы: %d\n\n", len(pending))
	for i := range pending {
		inv := &pending[i]
		fmt.Fprintf(&b, "%s | %s | %s\n",
			inv.InvoiceID,
			inv.FormatAmount(),
			inv.CreatedAt.Format("02.01 15:04"),
		)
	}
	s.reply(ctx, admin.TelegramID, b.String())
}

// cmdSetBlocked блокирует либо разблокирует пользователя:
// /block <user_id или @username>, /unblock <...>
func (s *Service) cmdSetBlocked(ctx context.Context, admin *domain.User, args []string, blocked bool) {
	name := "/unblock"
	if blocked {
		name = "/block"
	}
	if len(args) < 1 {
		s.reply(ctx, admin.TelegramID, fmt.Sprintf("❌ Использование: %s <user_id или @username>", name))
		return
	}

	target, err := s.resolveUser(ctx, args[0])
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.reply(ctx, admin.TelegramID, fmt.Sprintf("❌ Пользователь %s не найден", args[0]))
			return
		}
		s.replyError(ctx, admin.TelegramID, "❌ Ошибка поиска пользователя", err)
		return
	}
	if target.TelegramID == admin.TelegramID {
		s.reply(ctx, admin.TelegramID, "❌ Вы не можете заблокировать себя")
		return
	}

	if err := s.Users.SetBlocked(ctx, target.TelegramID, blocked, admin.TelegramID); err != nil {
		s.replyError(ctx, admin.TelegramID, "❌ Не удалось изменить блокировку", err)
		return
	}

	verb := "разблокирован"
	if blocked {
		verb = "заблокирован"
	}
	s.reply(ctx, admin.TelegramID, fmt.Sprintf("✅ Пользователь %s %s", target.DisplayName(), verb))
	s.Log.Info("user block state changed",
		"target_id", target.TelegramID,
		"blocked", blocked,
		"admin_id", admin.TelegramID,
	)
}

func (s *Service) cmdAdminHelp(ctx context.Context, admin *domain.User) {
	s.reply(ctx, admin.TelegramID, `📚 Админские команды

Инвойсы:
/invoice <получатель> <сумма> <категория> <описание> - создать и отправить
/cardlink <invoice_id> <card_ru|card_int> <email> - перевыпустить карточную ссылку
/cancel <invoice_id> - отменить
/markpaid <invoice_id> - отметить оплаченным вручную
/pending - список неоплаченных

Пользователи:
/block <user_id или @username> - заблокировать
/unblock <user_id или @username> - разблокировать

Категории: crypto, card_ru, card_int`)
}

func (s *Service) resolveUser(ctx context.Context, ref string) (*domain.User, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return s.Users.GetByTelegramID(ctx, id)
	}
	username := strings.TrimPrefix(ref, "@")
	if username == "" {
		return nil, domain.ErrUserNotFound
	}
	return s.Users.GetByUsername(ctx, username)
}

// replyError показывает причину только для бизнес-ошибок, технические
// детали остаются в логах
func (s *Service) replyError(ctx context.Context, chatID int64, prefix string, err error) {
	s.Log.Error("admin command failed", "error", err, "chat_id", chatID)
	if domain.IsBusinessError(err) {
		s.reply(ctx, chatID, fmt.Sprintf("%s: %s", prefix, err.Error()))
		return
	}
	s.reply(ctx, chatID, prefix+". Подробности в логах.")
}

// parseAmount разбирает сумму в минимальные единицы: "150" → 15000,
// "150.5" → 15050, "150.55" → 15055
func parseAmount(str string) (int64, error) {
	whole, frac, hasFrac := strings.Cut(str, ".")
	if whole == "" {
		return 0, fmt.Errorf("empty amount")
	}
	major, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || major < 0 {
		return 0, fmt.Errorf("invalid amount %q", str)
	}

	var minor int64
	if hasFrac {
		if len(frac) == 0 || len(frac) > 2 {
			return 0, fmt.Errorf("invalid amount %q", str)
		}
		if len(frac) == 1 {
			frac += "0"
		}
		minor, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q", str)
		}
	}

	amount := major*100 + minor
	if amount <= 0 {
		return 0, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}

func parseCategory(str string) (domain.PaymentCategory, bool) {
	switch domain.PaymentCategory(strings.ToLower(str)) {
	case domain.PaymentCategoryCrypto:
		return domain.PaymentCategoryCrypto, true
	case domain.PaymentCategoryCardRU:
		return domain.PaymentCategoryCardRU, true
	case domain.PaymentCategoryCardInt:
		return domain.PaymentCategoryCardInt, true
	default:
		return "", false
	}
}
