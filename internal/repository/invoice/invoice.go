package invoiceRepo

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
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

type invoiceColumns struct {
	TableName             string
	ID                    string
	InvoiceID             string
	RecipientID           string
	Amount                string
	Currency              string
	ServiceDescription    string
	Status                string
	PaymentURL            string
	ExternalInvoiceID     string
	Provider              string
	CreatorAdminID        string
	PresentationMessageID string
	CreatedAt             string
	PaidAt                string
	CancelledAt           string
	UpdatedAt             string
}

type paymentColumns struct {
	TableName     string
	ID            string
	InvoiceID     string
	TransactionID string
	Category      string
	Provider      string
	Method        string
	ClientEmail   string
	CreatedAt     string
	ConfirmedAt   string
}

type Repository struct {
	db       persistence.Persistence
	Log      *slog.Logger
	columns  invoiceColumns
	payments paymentColumns
}

// New создаёт новый репозиторий для работы с инвойсами и платежами
func New(db persistence.Persistence, log *slog.Logger) ports.IInvoiceRepo {
	cols := invoiceColumns{
		TableName:             "invoices",
		ID:                    "id",
		InvoiceID:             "invoice_id",
		RecipientID:           "recipient_id",
		Amount:                "amount",
		Currency:              "currency",
		ServiceDescription:    "service_description",
		Status:                "status",
		PaymentURL:            "payment_url",
		ExternalInvoiceID:     "external_invoice_id",
		Provider:              "provider",
		CreatorAdminID:        "creator_admin_id",
		PresentationMessageID: "presentation_message_id",
		CreatedAt:             "created_at",
		PaidAt:                "paid_at",
		CancelledAt:           "cancelled_at",
		UpdatedAt:             "updated_at",
	}
	payCols := paymentColumns{
		TableName:     "payments",
		ID:            "id",
		InvoiceID:     "invoice_id",
		TransactionID: "transaction_id",
		Category:      "category",
		Provider:      "provider",
		Method:        "method",
		ClientEmail:   "client_email",
		CreatedAt:     "created_at",
		ConfirmedAt:   "confirmed_at",
	}
	return &Repository{
		db:       db,
		Log:      log,
		columns:  cols,
		payments: payCols,
	}
}

// allColumns возвращает строку со всеми колонками инвойса (16 колонок)
func (r *Repository) allColumns() string {
	return fmt.Sprintf("%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s",
		r.columns.ID,
		r.columns.InvoiceID,
		r.columns.RecipientID,
		r.columns.Amount,
		r.columns.Currency,
		r.columns.ServiceDescription,
		r.columns.Status,
		r.columns.PaymentURL,
		r.columns.ExternalInvoiceID,
		r.columns.Provider,
		r.columns.CreatorAdminID,
		r.columns.PresentationMessageID,
		r.columns.CreatedAt,
		r.columns.PaidAt,
		r.columns.CancelledAt,
		r.columns.UpdatedAt)
}

// paymentAllColumns возвращает строку со всеми колонками платежа (9 колонок)
func (r *Repository) paymentAllColumns() string {
	return fmt.Sprintf("%s, %s, %s, %s, %s, %s, %s, %s, %s",
		r.payments.ID,
		r.payments.InvoiceID,
		r.payments.TransactionID,
		r.payments.Category,
		r.payments.Provider,
		r.payments.Method,
		r.payments.ClientEmail,
		r.payments.CreatedAt,
		r.payments.ConfirmedAt)
}

// Create создаёт новый инвойс в статусе pending
func (r *Repository) Create(ctx context.Context, invoice *domain.Invoice) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s, %s, %s, %s, %s, %s) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING %s, %s, %s`,
		r.columns.TableName,
		r.columns.InvoiceID,
		r.columns.RecipientID,
		r.columns.Amount,
		r.columns.Currency,
		r.columns.ServiceDescription,
		r.columns.CreatorAdminID,
		r.columns.ID,
		r.columns.CreatedAt,
		r.columns.UpdatedAt)
	row := r.db.QueryRow(ctx, query,
		invoice.InvoiceID,
		invoice.RecipientID,
		invoice.Amount,
		invoice.Currency,
		invoice.ServiceDescription,
		invoice.CreatorAdminID)
	if err := row.Scan(&invoice.ID, &invoice.CreatedAt, &invoice.UpdatedAt); err != nil {
		r.Log.Error("failed to create invoice",
			"error", err,
			"invoice_id", invoice.InvoiceID)
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	invoice.Status = domain.InvoiceStatusPending
	r.Log.Debug("invoice created",
		"invoice_id", invoice.InvoiceID,
		"recipient_id", invoice.RecipientID,
		"amount", invoice.Amount)
	return nil
}

// SetChargeDetails записывает платёжную ссылку и внешний идентификатор счёта
func (r *Repository) SetChargeDetails(ctx context.Context, invoiceID, paymentURL, externalID string, provider domain.PaymentProvider) error {
	query := fmt.Sprintf(`UPDATE %s SET %s = $1, %s = $2, %s = $3, %s = NOW() WHERE %s = $4`,
		r.columns.TableName,
		r.columns.PaymentURL,
		r.columns.ExternalInvoiceID,
		r.columns.Provider,
		r.columns.UpdatedAt,
		r.columns.InvoiceID)
	rowsAffected, err := r.db.ExecWithResult(ctx, query, paymentURL, externalID, provider, invoiceID)
	if err != nil {
		r.Log.Error("failed to set charge details",
			"error", err,
			"invoice_id", invoiceID,
			"provider", provider)
		return fmt.Errorf("failed to set charge details: %w", err)
	}
	if rowsAffected == 0 {
		r.Log.Warn("invoice not found for charge details", "invoice_id", invoiceID)
		return domain.ErrInvoiceNotFound
	}
	return nil
}

// SetPresentationMessageID запоминает id сообщения со счётом в чате получателя
func (r *Repository) SetPresentationMessageID(ctx context.Context, invoiceID string, messageID int64) error {
	query := fmt.Sprintf(`UPDATE %s SET %s = $1, %s = NOW() WHERE %s = $2`,
		r.columns.TableName,
		r.columns.PresentationMessageID,
		r.columns.UpdatedAt,
		r.columns.InvoiceID)
	rowsAffected, err := r.db.ExecWithResult(ctx, query, messageID, invoiceID)
	if err != nil {
		r.Log.Error("failed to set presentation message id",
			"error", err,
			"invoice_id", invoiceID)
		return fmt.Errorf("failed to set presentation message id: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrInvoiceNotFound
	}
	return nil
}

// GetByInvoiceID получает инвойс по человекочитаемому идентификатору
func (r *Repository) GetByInvoiceID(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	var invoice domain.Invoice
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`,
		r.allColumns(),
		r.columns.TableName,
		r.columns.InvoiceID)
	err := r.db.Get(ctx, &invoice, query, invoiceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInvoiceNotFound
		}
		r.Log.Error("failed to get invoice",
			"error", err,
			"invoice_id", invoiceID)
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return &invoice, nil
}

// GetByExternalID получает инвойс по идентификатору счёта у провайдера
func (r *Repository) GetByExternalID(ctx context.Context, externalID string) (*domain.Invoice, error) {
	var invoice domain.Invoice
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`,
		r.allColumns(),
		r.columns.TableName,
		r.columns.ExternalInvoiceID)
	err := r.db.Get(ctx, &invoice, query, externalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInvoiceNotFound
		}
		r.Log.Error("failed to get invoice by external id",
			"error", err,
			"external_id", externalID)
		return nil, fmt.Errorf("failed to get invoice by external id: %w", err)
	}
	return &invoice, nil
}

// GetWithRecipient получает инвойс вместе с получателем
func (r *Repository) GetWithRecipient(ctx context.Context, invoiceID string) (*domain.Invoice, *domain.User, error) {
	invoice, err := r.GetByInvoiceID(ctx, invoiceID)
	if err != nil {
		return nil, nil, err
	}
	var user domain.User
	query := `SELECT id, telegram_id, username, first_name, last_name, is_admin, is_blocked,
		blocked_at, blocked_by, created_at, updated_at FROM users WHERE telegram_id = $1`
	if err := r.db.Get(ctx, &user, query, invoice.RecipientID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return invoice, nil, domain.ErrUserNotFound
		}
		return invoice, nil, fmt.Errorf("failed to get invoice recipient: %w", err)
	}
	return invoice, &user, nil
}

// ListPending возвращает все pending-инвойсы, старые первыми
func (r *Repository) ListPending(ctx context.Context) ([]domain.Invoice, error) {
	var invoices []domain.Invoice
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 ORDER BY %s ASC`,
		r.allColumns(),
		r.columns.TableName,
		r.columns.Status,
		r.columns.CreatedAt)
	if err := r.db.Select(ctx, &invoices, query, domain.InvoiceStatusPending); err != nil {
		r.Log.Error("failed to list pending invoices", "error", err)
		return nil, fmt.Errorf("failed to list pending invoices: %w", err)
	}
	return invoices, nil
}

// ListByRecipient возвращает инвойсы получателя, новые первыми
func (r *Repository) ListByRecipient(ctx context.Context, telegramID int64) ([]domain.Invoice, error) {
	var invoices []domain.Invoice
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 ORDER BY %s DESC`,
		r.allColumns(),
		r.columns.TableName,
		r.columns.RecipientID,
		r.columns.CreatedAt)
	if err := r.db.Select(ctx, &invoices, query, telegramID); err != nil {
		r.Log.Error("failed to list invoices by recipient",
			"error", err,
			"recipient_id", telegramID)
		return nil, fmt.Errorf("failed to list invoices by recipient: %w", err)
	}
	return invoices, nil
}

// ApplyPayment применяет подтверждение оплаты. Вся логика выполняется в одной
// транзакции под блокировкой строки инвойса:
//  1. инвойс читается с FOR UPDATE;
//  2. если у инвойса есть external_invoice_id, он замещает transaction_id
//     источника, чтобы вебхук и поллер одного платежа схлопывались в один ключ;
//  3. существующая запись платежа с этим ключом означает дубликат доставки.
//     Если инвойс при этом почему-то остался pending, он дочиняется до paid,
//     но исход всё равно AlreadyApplied и уведомления не отправляются;
//  4. терминальный инвойс без записи платежа отклоняется как AlreadyTerminal
//     (оплата после истечения или отмены, деньги пришли, вопрос решает админ);
//  5. иначе инвойс переводится в paid и вставляется запись платежа. Гонка двух
//     параллельных подтверждений разрешается уникальным индексом по
//     transaction_id: проигравший получает 23505 и исход AlreadyApplied
func (r *Repository) ApplyPayment(ctx context.Context, conf domain.PaymentConfirmation) (*domain.ApplyResult, error) {
	var result *domain.ApplyResult
	err := r.db.WithTransaction(ctx, func(ctx context.Context, tx persistence.Transaction) error {
		var err error
		result, err = r.applyPaymentTx(ctx, tx, conf)
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			// проигравшая сторона гонки: платёж уже записан параллельной транзакцией
			r.Log.Info("concurrent payment confirmation lost the race",
				"invoice_id", conf.InvoiceID,
				"transaction_id", conf.TransactionID)
			invoice, recipient, getErr := r.GetWithRecipient(ctx, conf.InvoiceID)
			if getErr != nil && !errors.Is(getErr, domain.ErrUserNotFound) {
				return nil, getErr
			}
			return &domain.ApplyResult{
				Outcome:   domain.ApplyOutcomeAlreadyApplied,
				Invoice:   invoice,
				Recipient: recipient,
			}, nil
		}
		return nil, err
	}
	return result, nil
}

func (r *Repository) applyPaymentTx(ctx context.Context, tx persistence.Transaction, conf domain.PaymentConfirmation) (*domain.ApplyResult, error) {
	var invoice domain.Invoice
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 FOR UPDATE`,
		r.allColumns(),
		r.columns.TableName,
		r.columns.InvoiceID)
	err := tx.Get(ctx, &invoice, query, conf.InvoiceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.Log.Warn("payment confirmation for unknown invoice",
				"invoice_id", conf.InvoiceID,
				"transaction_id", conf.TransactionID,
				"provider", conf.Provider)
			return &domain.ApplyResult{Outcome: domain.ApplyOutcomeNotFound}, nil
		}
		return nil, fmt.Errorf("failed to lock invoice: %w", err)
	}

	// нормализация ключа идемпотентности: внешний идентификатор счёта,
	// если он известен, перекрывает transaction_id источника
	txID := conf.TransactionID
	if invoice.ExternalInvoiceID != nil && *invoice.ExternalInvoiceID != "" {
		txID = *invoice.ExternalInvoiceID
	}

	var existing domain.Payment
	payQuery := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`,
		r.paymentAllColumns(),
		r.payments.TableName,
		r.payments.TransactionID)
	err = tx.Get(ctx, &existing, payQuery, txID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to check existing payment: %w", err)
	}
	if err == nil {
		// дубликат доставки; если дочитка статуса не прошла в прошлый раз,
		// дочиняем инвойс до paid прямо здесь
		if invoice.Status == domain.InvoiceStatusPending {
			if err := r.markPaidTx(ctx, tx, &invoice); err != nil {
				return nil, err
			}
			r.Log.Warn("repaired pending invoice on duplicate confirmation",
				"invoice_id", invoice.InvoiceID,
				"transaction_id", txID)
		}
		recipient, err := r.recipientTx(ctx, tx, invoice.RecipientID)
		if err != nil {
			return nil, err
		}
		return &domain.ApplyResult{
			Outcome:   domain.ApplyOutcomeAlreadyApplied,
			Invoice:   &invoice,
			Recipient: recipient,
			Payment:   &existing,
		}, nil
	}

	if invoice.Status.IsTerminal() {
		if invoice.Status == domain.InvoiceStatusPaid {
			// paid без записи платежа: считаем дубликатом, не терминальным отказом
			return &domain.ApplyResult{Outcome: domain.ApplyOutcomeAlreadyApplied, Invoice: &invoice}, nil
		}
		r.Log.Warn("payment confirmation for terminal invoice",
			"invoice_id", invoice.InvoiceID,
			"status", invoice.Status,
			"transaction_id", txID)
		return &domain.ApplyResult{Outcome: domain.ApplyOutcomeAlreadyTerminal, Invoice: &invoice}, nil
	}

	if err := r.markPaidTx(ctx, tx, &invoice); err != nil {
		return nil, err
	}

	payment := domain.Payment{
		ID:            uuid.New(),
		InvoiceID:     invoice.InvoiceID,
		TransactionID: txID,
		Category:      conf.Category,
		Provider:      conf.Provider,
		Method:        conf.Method,
		ClientEmail:   conf.ClientEmail,
	}
	insertQuery := fmt.Sprintf(`INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING %s, %s`,
		r.payments.TableName,
		r.payments.ID,
		r.payments.InvoiceID,
		r.payments.TransactionID,
		r.payments.Category,
		r.payments.Provider,
		r.payments.Method,
		r.payments.ClientEmail,
		r.payments.CreatedAt,
		r.payments.ConfirmedAt)
	row := tx.QueryRow(ctx, insertQuery,
		payment.ID,
		payment.InvoiceID,
		payment.TransactionID,
		payment.Category,
		payment.Provider,
		payment.Method,
		payment.ClientEmail)
	if err := row.Scan(&payment.CreatedAt, &payment.ConfirmedAt); err != nil {
		return nil, fmt.Errorf("failed to insert payment: %w", err)
	}

	recipient, err := r.recipientTx(ctx, tx, invoice.RecipientID)
	if err != nil {
		return nil, err
	}

	r.Log.Info("payment applied",
		"invoice_id", invoice.InvoiceID,
		"transaction_id", txID,
		"provider", conf.Provider,
		"category", conf.Category,
		"amount", invoice.Amount)
	return &domain.ApplyResult{
		Outcome:   domain.ApplyOutcomeApplied,
		Invoice:   &invoice,
		Recipient: recipient,
		Payment:   &payment,
	}, nil
}

func (r *Repository) markPaidTx(ctx context.Context, tx persistence.Transaction, invoice *domain.Invoice) error {
	query := fmt.Sprintf(`UPDATE %s SET %s = $1, %s = NOW(), %s = NOW() WHERE %s = $2
		RETURNING %s, %s`,
		r.columns.TableName,
		r.columns.Status,
		r.columns.PaidAt,
		r.columns.UpdatedAt,
		r.columns.InvoiceID,
		r.columns.PaidAt,
		r.columns.UpdatedAt)
	row := tx.QueryRow(ctx, query, domain.InvoiceStatusPaid, invoice.InvoiceID)
	if err := row.Scan(&invoice.PaidAt, &invoice.UpdatedAt); err != nil {
		return fmt.Errorf("failed to mark invoice paid: %w", err)
	}
	invoice.Status = domain.InvoiceStatusPaid
	return nil
}

func (r *Repository) recipientTx(ctx context.Context, tx persistence.Transaction, telegramID int64) (*domain.User, error) {
	var user domain.User
	query := `SELECT id, telegram_id, username, first_name, last_name, is_admin, is_blocked,
		blocked_at, blocked_by, created_at, updated_at FROM users WHERE telegram_id = $1`
	if err := tx.Get(ctx, &user, query, telegramID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// инвойс на получателя, которого ещё нет в users: уведомим только админов
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get recipient: %w", err)
	}
	return &user, nil
}

// Cancel переводит pending-инвойс в cancelled
func (r *Repository) Cancel(ctx context.Context, invoiceID string) (domain.CancelOutcome, error) {
	outcome := domain.CancelOutcomeNotFound
	err := r.db.WithTransaction(ctx, func(ctx context.Context, tx persistence.Transaction) error {
		var status domain.InvoiceStatus
		query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 FOR UPDATE`,
			r.columns.Status,
			r.columns.TableName,
			r.columns.InvoiceID)
		err := tx.Get(ctx, &status, query, invoiceID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				outcome = domain.CancelOutcomeNotFound
				return nil
			}
			return fmt.Errorf("failed to lock invoice for cancel: %w", err)
		}
		if status.IsTerminal() {
			outcome = domain.CancelOutcomeAlreadyTerminal
			return nil
		}
		update := fmt.Sprintf(`UPDATE %s SET %s = $1, %s = NOW(), %s = NOW() WHERE %s = $2`,
			r.columns.TableName,
			r.columns.Status,
			r.columns.CancelledAt,
			r.columns.UpdatedAt,
			r.columns.InvoiceID)
		if err := tx.Exec(ctx, update, domain.InvoiceStatusCancelled, invoiceID); err != nil {
			return fmt.Errorf("failed to cancel invoice: %w", err)
		}
		outcome = domain.CancelOutcomeCancelled
		return nil
	})
	if err != nil {
		r.Log.Error("failed to cancel invoice",
			"error", err,
			"invoice_id", invoiceID)
		return outcome, err
	}
	if outcome == domain.CancelOutcomeCancelled {
		r.Log.Info("invoice cancelled", "invoice_id", invoiceID)
	}
	return outcome, nil
}

// ExpireOlderThan массово переводит просроченные pending-инвойсы в expired.
// Условие по created_at повторяется в UPDATE, поэтому оплата, успевшая между
// выборкой и обновлением, не будет затёрта
func (r *Repository) ExpireOlderThan(ctx context.Context, deadline time.Time) (int64, error) {
	query := fmt.Sprintf(`UPDATE %s SET %s = $1, %s = NOW() WHERE %s = $2 AND %s < $3`,
		r.columns.TableName,
		r.columns.Status,
		r.columns.UpdatedAt,
		r.columns.Status,
		r.columns.CreatedAt)
	rowsAffected, err := r.db.ExecWithResult(ctx, query,
		domain.InvoiceStatusExpired,
		domain.InvoiceStatusPending,
		deadline)
	if err != nil {
		r.Log.Error("failed to expire invoices", "error", err)
		return 0, fmt.Errorf("failed to expire invoices: %w", err)
	}
	if rowsAffected > 0 {
		r.Log.Info("invoices expired", "count", rowsAffected, "deadline", deadline)
	}
	return rowsAffected, nil
}
