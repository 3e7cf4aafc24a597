package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/admin/tg-bots/invoice-bot/internal/domain"
)

// HandleUpdate основной метод для обработки всех типов обновлений.
// Передаётся поллеру как UpdateHandler
func (s *Service) HandleUpdate(ctx context.Context, update *domain.Update) error {
	if update == nil {
		return fmt.Errorf("update is nil")
	}

	if update.Message != nil {
		return s.HandleMessage(ctx, update.Message, update.UpdateID)
	}
	if update.CallbackQuery != nil {
		return s.HandleCallback(ctx, update.CallbackQuery)
	}

	return nil
}

// HandleMessage обрабатывает входящее сообщение: апсерт пользователя,
// проверки доступа, роутинг команды
func (s *Service) HandleMessage(ctx context.Context, message *domain.Message, updateID int64) error {
	if message == nil {
		return fmt.Errorf("message is nil")
	}

	if message.From == nil || message.From.IsBot {
		s.Log.Debug("ignoring message from bot", "update_id", updateID)
		return nil
	}

	if message.Chat != nil && message.Chat.Type != "private" {
		s.Log.Warn("ignoring message from group/chat",
			"update_id", updateID,
			"chat_type", message.Chat.Type,
			"chat_id", message.Chat.ID,
		)
		return nil
	}

	user, err := s.Users.Upsert(ctx, message.From)
	if err != nil {
		s.Log.Error("failed to upsert user",
			"error", err,
			"telegram_user_id", message.From.ID,
			"update_id", updateID,
		)
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	// заблокированные игнорируются молча
	if user.IsBlocked {
		s.Log.Debug("ignoring message from blocked user",
			"telegram_id", user.TelegramID,
			"update_id", updateID,
		)
		return nil
	}

	if s.isRateLimited(ctx, user.TelegramID) {
		s.Log.Warn("rate limit exceeded",
			"telegram_id", user.TelegramID,
			"update_id", updateID,
		)
		return nil
	}

	if message.Text == nil {
		return nil
	}
	text := *message.Text
	if !IsCommand(text) {
		return nil
	}

	command := ParseCommand(text)
	args := ParseArgs(text)

	if user.IsAdmin {
		handled, err := s.handleAdminCommand(ctx, user, command, args)
		if handled || err != nil {
			return err
		}
	}
	return s.handleUserCommand(ctx, user, command)
}

// ParseCommand выделяет имя команды из текста: "/invoice@bot abc" → "invoice"
func ParseCommand(text string) string {
	text = strings.TrimPrefix(text, "/")

	if idx := strings.Index(text, "@"); idx != -1 {
		text = text[:idx]
	}

	if idx := strings.Index(text, " "); idx != -1 {
		text = text[:idx]
	}

	return text
}

// ParseArgs возвращает аргументы команды (всё после первого пробела)
func ParseArgs(text string) []string {
	idx := strings.Index(text, " ")
	if idx == -1 {
		return nil
	}
	return strings.Fields(text[idx+1:])
}

func IsCommand(text string) bool {
	return len(text) > 0 && text[0] == '/'
}

// reply шлёт текстовый ответ, ошибки доставки только логируются
func (s *Service) reply(ctx context.Context, chatID int64, text string) {
	if _, err := s.Client.SendMessage(ctx, chatID, text); err != nil {
		s.Log.Error("failed to send reply",
			"error", err,
			"chat_id", chatID,
		)
	}
}
