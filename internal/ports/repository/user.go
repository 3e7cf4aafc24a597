package repository

import (
	"context"

	"github.com/admin/tg-bots/invoice-bot/internal/domain"
)

// IUserRepo интерфейс для работы с пользователями в БД
type IUserRepo interface {
	// Upsert создаёт пользователя при первом обращении либо обновляет
	// username/имя при их изменении
	Upsert(ctx context.Context, tgUser *domain.TelegramUser) (*domain.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	SetBlocked(ctx context.Context, telegramID int64, blocked bool, byAdminID int64) error
	SetAdmin(ctx context.Context, telegramID int64, isAdmin bool) error
}
