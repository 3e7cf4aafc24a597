package telegram

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	TgClient "github.com/admin/tg-bots/invoice-bot/internal/adapters/secondary/telegram"
	"github.com/admin/tg-bots/invoice-bot/internal/ports/cache"
	"github.com/admin/tg-bots/invoice-bot/internal/ports/repository"
	invoiceUC "github.com/admin/tg-bots/invoice-bot/internal/usecases/invoice"
)

const (
	rateWindow  = 3 * time.Second
	rateMaxHits = 5
	ratePrefix  = "antispam"
)

// Service обрабатывает обновления Telegram: апсерт пользователя, проверка
// блокировки, антиспам, роутинг команд в usecase инвойсов
type Service struct {
	Invoices *invoiceUC.Service
	Users    repository.IUserRepo
	Client   *TgClient.Client
	Cache    cache.Cache // nil отключает антиспам
	Log      *slog.Logger
}

func New(
	invoices *invoiceUC.Service,
	users repository.IUserRepo,
	client *TgClient.Client,
	cacheClient cache.Cache,
	log *slog.Logger,
) *Service {
	return &Service{
		Invoices: invoices,
		Users:    users,
		Client:   client,
		Cache:    cacheClient,
		Log:      log,
	}
}

// RegisterCommands публикует меню команд бота
func (s *Service) RegisterCommands(ctx context.Context) error {
	commands := []TgClient.BotCommand{
		{Command: "start", Description: "Начать работу с ботом"},
		{Command: "help", Description: "Справка"},
		{Command: "history", Description: "История ваших инвойсов"},
	}
	if err := s.Client.SetMyCommands(ctx, commands); err != nil {
		return fmt.Errorf("failed to register bot commands: %w", err)
	}
	return nil
}

// isRateLimited считает обращения пользователя в скользящем окне.
// Отказ редиса не блокирует пользователя
func (s *Service) isRateLimited(ctx context.Context, telegramID int64) bool {
	if s.Cache == nil {
		return false
	}
	key := fmt.Sprintf("%s:%d", ratePrefix, telegramID)
	count, err := s.Cache.Incr(ctx, key, rateWindow)
	if err != nil {
		s.Log.Warn("rate limit check failed", "error", err, "telegram_id", telegramID)
		return false
	}
	return count > rateMaxHits
}
