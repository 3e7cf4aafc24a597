package userRepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	ports "github.com/admin/tg-bots/invoice-bot/internal/ports/repository"

	"log/slog"

	"github.com/admin/tg-bots/invoice-bot/internal/domain"
	"github.com/admin/tg-bots/invoice-bot/internal/ports/persistence"
)

type userColumns struct {
	TableName  string
	ID         string
	TelegramID string
	Username   string
	FirstName  string
	LastName   string
	IsAdmin    string
	IsBlocked  string
	BlockedAt  string
	BlockedBy  string
	CreatedAt  string
	UpdatedAt  string
}

type Repository struct {
	db      persistence.Persistence
	Log     *slog.Logger
	columns userColumns
}

// New создаёт новый репозиторий для работы с пользователями
func New(db persistence.Persistence, log *slog.Logger) ports.IUserRepo {
	cols := userColumns{
		TableName:  "users",
		ID:         "id",
		TelegramID: "telegram_id",
		Username:   "username",
		FirstName:  "first_name",
		LastName:   "last_name",
		IsAdmin:    "is_admin",
		IsBlocked:  "is_blocked",
		BlockedAt:  "blocked_at",
		BlockedBy:  "blocked_by",
		CreatedAt:  "created_at",
		UpdatedAt:  "updated_at",
	}
	return &Repository{
		db:      db,
		Log:     log,
		columns: cols,
	}
}

// allColumns возвращает строку со всеми колонками (11 колонок)
func (r *Repository) allColumns() string {
	return fmt.Sprintf("%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s",
		r.columns.ID,
		r.columns.TelegramID,
		r.columns.Username,
		r.columns.FirstName,
		r.columns.LastName,
		r.columns.IsAdmin,
		r.columns.IsBlocked,
		r.columns.BlockedAt,
		r.columns.BlockedBy,
		r.columns.CreatedAt,
		r.columns.UpdatedAt)
}

// Upsert создаёт пользователя либо обновляет его имя и username при повторном появлении
func (r *Repository) Upsert(ctx context.Context, tgUser *domain.TelegramUser) (*domain.User, error) {
	var user domain.User
	query := fmt.Sprintf(`INSERT INTO %s (%s, %s, %s, %s) VALUES ($1, $2, $3, $4)
		ON CONFLICT (%s) DO UPDATE SET
			%s = EXCLUDED.%s,
			%s = EXCLUDED.%s,
			%s = EXCLUDED.%s,
			%s = NOW()
		RETURNING %s`,
		r.columns.TableName,
		r.columns.TelegramID,
		r.columns.Username,
		r.columns.FirstName,
		r.columns.LastName,
		r.columns.TelegramID,
		r.columns.Username, r.columns.Username,
		r.columns.FirstName, r.columns.FirstName,
		r.columns.LastName, r.columns.LastName,
		r.columns.UpdatedAt,
		r.allColumns())

	var username *string
	if tgUser.Username != nil && *tgUser.Username != "" {
		username = tgUser.Username
	}

	err := r.db.QueryRow(ctx, query,
		tgUser.ID,
		username,
		tgUser.FirstName,
		tgUser.LastName).StructScan(&user)
	if err != nil {
		r.Log.Error("failed to upsert user",
			"error", err,
			"telegram_id", tgUser.ID)
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	r.Log.Debug("user upserted successfully",
		"id", user.ID,
		"telegram_id", user.TelegramID)
	return &user, nil
}

// GetByTelegramID получает пользователя по Telegram ID
func (r *Repository) GetByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	var user domain.User
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`,
		r.allColumns(),
		r.columns.TableName,
		r.columns.TelegramID)
	err := r.db.Get(ctx, &user, query, telegramID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.Log.Warn("user not found", "telegram_id", telegramID)
			return nil, domain.ErrUserNotFound
		}
		r.Log.Error("failed to get user by telegram id",
			"error", err,
			"telegram_id", telegramID)
		return nil, fmt.Errorf("failed to get user by telegram id: %w", err)
	}
	return &user, nil
}

// GetByID получает пользователя по внутреннему ID
func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	var user domain.User
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`,
		r.allColumns(),
		r.columns.TableName,
		r.columns.ID)
	err := r.db.Get(ctx, &user, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.Log.Warn("user not found", "user_id", id)
			return nil, domain.ErrUserNotFound
		}
		r.Log.Error("failed to get user by id",
			"error", err,
			"user_id", id)
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &user, nil
}

// GetByUsername получает пользователя по username без учёта регистра
func (r *Repository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE LOWER(%s) = LOWER($1)`,
		r.allColumns(),
		r.columns.TableName,
		r.columns.Username)
	err := r.db.Get(ctx, &user, query, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.Log.Warn("user not found", "username", username)
			return nil, domain.ErrUserNotFound
		}
		r.Log.Error("failed to get user by username",
			"error", err,
			"username", username)
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	return &user, nil
}

// SetBlocked устанавливает или снимает блокировку пользователя
func (r *Repository) SetBlocked(ctx context.Context, telegramID int64, blocked bool, byAdminID int64) error {
	var blockedAt *time.Time
	var blockedBy *int64
	if blocked {
		now := time.Now()
		blockedAt = &now
		blockedBy = &byAdminID
	}
	query := fmt.Sprintf(`UPDATE %s SET %s = $1, %s = $2, %s = $3, %s = NOW() WHERE %s = $4`,
		r.columns.TableName,
		r.columns.IsBlocked,
		r.columns.BlockedAt,
		r.columns.BlockedBy,
		r.columns.UpdatedAt,
		r.columns.TelegramID)
	rowsAffected, err := r.db.ExecWithResult(ctx, query, blocked, blockedAt, blockedBy, telegramID)
	if err != nil {
		r.Log.Error("failed to set blocked",
			"error", err,
			"telegram_id", telegramID,
			"blocked", blocked)
		return fmt.Errorf("failed to set blocked: %w", err)
	}
	if rowsAffected == 0 {
		r.Log.Warn("user not found for block update", "telegram_id", telegramID)
		return domain.ErrUserNotFound
	}
	r.Log.Info("user block status updated",
		"telegram_id", telegramID,
		"blocked", blocked,
		"by_admin", byAdminID)
	return nil
}

// SetAdmin выдаёт или отзывает права администратора
func (r *Repository) SetAdmin(ctx context.Context, telegramID int64, isAdmin bool) error {
	query := fmt.Sprintf(`UPDATE %s SET %s = $1, %s = NOW() WHERE %s = $2`,
		r.columns.TableName,
		r.columns.IsAdmin,
		r.columns.UpdatedAt,
		r.columns.TelegramID)
	rowsAffected, err := r.db.ExecWithResult(ctx, query, isAdmin, telegramID)
	if err != nil {
		r.Log.Error("failed to set admin",
			"error", err,
			"telegram_id", telegramID)
		return fmt.Errorf("failed to set admin: %w", err)
	}
	if rowsAffected == 0 {
		r.Log.Warn("user not found for admin update", "telegram_id", telegramID)
		return domain.ErrUserNotFound
	}
	return nil
}
