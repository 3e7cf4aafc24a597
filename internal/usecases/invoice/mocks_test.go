package invoice

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"log/slog"

	"github.com/admin/tg-bots/invoice-bot/internal/domain"
	paymentPort "github.com/admin/tg-bots/invoice-bot/internal/ports/payment"
	"github.com/google/uuid"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeInvoiceRepo потокобезопасное in-memory хранилище, воспроизводящее
// семантику ApplyPayment: нормализация transaction_id через
// external_invoice_id и уникальность платежа по transaction_id
type fakeInvoiceRepo struct {
	mu       sync.Mutex
	invoices map[string]*domain.Invoice
	payments map[string]*domain.Payment // transaction_id -> payment
	users    map[int64]*domain.User     // telegram_id -> user
}

func newFakeInvoiceRepo() *fakeInvoiceRepo {
	return &fakeInvoiceRepo{
		invoices: make(map[string]*domain.Invoice),
		payments: make(map[string]*domain.Payment),
		users:    make(map[int64]*domain.User),
	}
}

func (r *fakeInvoiceRepo) addUser(u *domain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.TelegramID] = u
}

func (r *fakeInvoiceRepo) Create(_ context.Context, inv *domain.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.invoices[inv.InvoiceID]; ok {
		return fmt.Errorf("duplicate invoice_id %s", inv.InvoiceID)
	}
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = inv.CreatedAt
	cp := *inv
	r.invoices[inv.InvoiceID] = &cp
	return nil
}

func (r *fakeInvoiceRepo) SetChargeDetails(_ context.Context, invoiceID, paymentURL, externalID string, provider domain.PaymentProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[invoiceID]
	if !ok {
		return domain.ErrInvoiceNotFound
	}
	inv.PaymentURL = &paymentURL
	inv.ExternalInvoiceID = &externalID
	inv.Provider = &provider
	return nil
}

func (r *fakeInvoiceRepo) SetPresentationMessageID(_ context.Context, invoiceID string, messageID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[invoiceID]
	if !ok {
		return domain.ErrInvoiceNotFound
	}
	inv.PresentationMessageID = &messageID
	return nil
}

func (r *fakeInvoiceRepo) GetByInvoiceID(_ context.Context, invoiceID string) (*domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[invoiceID]
	if !ok {
		return nil, domain.ErrInvoiceNotFound
	}
	cp := *inv
	return &cp, nil
}

func (r *fakeInvoiceRepo) GetByExternalID(_ context.Context, externalID string) (*domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invoices {
		if inv.ExternalInvoiceID != nil && *inv.ExternalInvoiceID == externalID {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, domain.ErrInvoiceNotFound
}

func (r *fakeInvoiceRepo) GetWithRecipient(_ context.Context, invoiceID string) (*domain.Invoice, *domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[invoiceID]
	if !ok {
		return nil, nil, domain.ErrInvoiceNotFound
	}
	cp := *inv
	if u, ok := r.users[inv.RecipientID]; ok {
		uc := *u
		return &cp, &uc, nil
	}
	return &cp, nil, nil
}

func (r *fakeInvoiceRepo) ListPending(_ context.Context) ([]domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Invoice
	for _, inv := range r.invoices {
		if inv.Status == domain.InvoiceStatusPending {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (r *fakeInvoiceRepo) ListByRecipient(_ context.Context, telegramID int64) ([]domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Invoice
	for _, inv := range r.invoices {
		if inv.RecipientID == telegramID {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (r *fakeInvoiceRepo) ApplyPayment(_ context.Context, conf domain.PaymentConfirmation) (*domain.ApplyResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.invoices[conf.InvoiceID]
	if !ok {
		return &domain.ApplyResult{Outcome: domain.ApplyOutcomeNotFound}, nil
	}

	txID := conf.TransactionID
	if inv.ExternalInvoiceID != nil && *inv.ExternalInvoiceID != "" {
		txID = *inv.ExternalInvoiceID
	}

	recipient := func() *domain.User {
		if u, ok := r.users[inv.RecipientID]; ok {
			uc := *u
			return &uc
		}
		return nil
	}

	if existing, ok := r.payments[txID]; ok {
		if inv.Status == domain.InvoiceStatusPending {
			r.markPaid(inv)
		}
		cp := *inv
		pp := *existing
		return &domain.ApplyResult{
			Outcome:   domain.ApplyOutcomeAlreadyApplied,
			Invoice:   &cp,
			Recipient: recipient(),
			Payment:   &pp,
		}, nil
	}

	if inv.Status.IsTerminal() {
		outcome := domain.ApplyOutcomeAlreadyTerminal
		if inv.Status == domain.InvoiceStatusPaid {
			outcome = domain.ApplyOutcomeAlreadyApplied
		}
		cp := *inv
		return &domain.ApplyResult{Outcome: outcome, Invoice: &cp, Recipient: recipient()}, nil
	}

	r.markPaid(inv)
	payment := &domain.Payment{
		ID:            uuid.New(),
		InvoiceID:     inv.InvoiceID,
		TransactionID: txID,
		Category:      conf.Category,
		Provider:      conf.Provider,
		Method:        conf.Method,
		ClientEmail:   conf.ClientEmail,
		CreatedAt:     time.Now(),
		ConfirmedAt:   time.Now(),
	}
	r.payments[txID] = payment

	cp := *inv
	pp := *payment
	return &domain.ApplyResult{
		Outcome:   domain.ApplyOutcomeApplied,
		Invoice:   &cp,
		Recipient: recipient(),
		Payment:   &pp,
	}, nil
}

func (r *fakeInvoiceRepo) markPaid(inv *domain.Invoice) {
	now := time.Now()
	inv.Status = domain.InvoiceStatusPaid
	inv.PaidAt = &now
	inv.UpdatedAt = now
}

func (r *fakeInvoiceRepo) Cancel(_ context.Context, invoiceID string) (domain.CancelOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[invoiceID]
	if !ok {
		return domain.CancelOutcomeNotFound, nil
	}
	if inv.Status.IsTerminal() {
		return domain.CancelOutcomeAlreadyTerminal, nil
	}
	now := time.Now()
	inv.Status = domain.InvoiceStatusCancelled
	inv.CancelledAt = &now
	return domain.CancelOutcomeCancelled, nil
}

func (r *fakeInvoiceRepo) ExpireOlderThan(_ context.Context, deadline time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, inv := range r.invoices {
		if inv.Status == domain.InvoiceStatusPending && inv.CreatedAt.Before(deadline) {
			inv.Status = domain.InvoiceStatusExpired
			count++
		}
	}
	return count, nil
}

// fakeUserRepo пользователи в памяти
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[int64]*domain.User
}

func newFakeUserRepo(users ...*domain.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[int64]*domain.User)}
	for _, u := range users {
		r.users[u.TelegramID] = u
	}
	return r
}

func (r *fakeUserRepo) Upsert(_ context.Context, tgUser *domain.TelegramUser) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := &domain.User{TelegramID: tgUser.ID, FirstName: tgUser.FirstName, Username: tgUser.Username}
	r.users[u.TelegramID] = u
	return u, nil
}

func (r *fakeUserRepo) GetByTelegramID(_ context.Context, telegramID int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[telegramID]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, domain.ErrUserNotFound
}

func (r *fakeUserRepo) GetByID(_ context.Context, id int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *fakeUserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username != nil && *u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *fakeUserRepo) SetBlocked(_ context.Context, telegramID int64, blocked bool, _ int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[telegramID]; ok {
		u.IsBlocked = blocked
		return nil
	}
	return domain.ErrUserNotFound
}

func (r *fakeUserRepo) SetAdmin(_ context.Context, telegramID int64, isAdmin bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[telegramID]; ok {
		u.IsAdmin = isAdmin
		return nil
	}
	return domain.ErrUserNotFound
}

// countingNotifier считает отправленные уведомления
type countingNotifier struct {
	mu             sync.Mutex
	InvoicesSent   int
	ClientSuccess  int
	AdminNotified  int
	ButtonsRemoved int
	CancelNotices  int
	SendInvoiceErr error
	NextMessageID  int64
}

func (n *countingNotifier) SendInvoice(_ context.Context, _ *domain.Invoice, _ *domain.User) (int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.SendInvoiceErr != nil {
		return 0, n.SendInvoiceErr
	}
	n.InvoicesSent++
	n.NextMessageID++
	return n.NextMessageID, nil
}

func (n *countingNotifier) NotifyClientPaymentSuccess(_ context.Context, _ *domain.Invoice, _ *domain.User) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ClientSuccess++
	return nil
}

func (n *countingNotifier) NotifyAdminsPaymentReceived(_ context.Context, _ *domain.Invoice, _ *domain.User) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.AdminNotified++
	return nil
}

func (n *countingNotifier) RemovePaymentButtons(_ context.Context, _ *domain.Invoice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ButtonsRemoved++
	return nil
}

func (n *countingNotifier) NotifyClientInvoiceCancelled(_ context.Context, _ *domain.Invoice, _ *domain.User) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.CancelNotices++
	return nil
}

// countingProducer считает опубликованные события
type countingProducer struct {
	mu        sync.Mutex
	Published int
}

func (p *countingProducer) PaymentConfirmed(_ context.Context, _ *domain.Invoice, _ *domain.Payment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Published++
	return nil
}

func (p *countingProducer) Close() error { return nil }

// fakeProvider управляемый платёжный провайдер
type fakeProvider struct {
	name     domain.PaymentProvider
	category domain.PaymentCategory

	ChargeErr error
	ChargeURL string
	ChargeRef string
	Status    *paymentPort.StatusResult
	StatusErr error
	ChargeCnt int
	StatusCnt int
}

func (p *fakeProvider) Name() domain.PaymentProvider           { return p.name }
func (p *fakeProvider) Category() domain.PaymentCategory       { return p.category }
func (p *fakeProvider) VerifyWebhook([]byte, http.Header) bool { return true }

func (p *fakeProvider) CreateCharge(_ context.Context, _ *domain.Invoice, _ string) (*paymentPort.ChargeResult, error) {
	p.ChargeCnt++
	if p.ChargeErr != nil {
		return nil, p.ChargeErr
	}
	return &paymentPort.ChargeResult{PaymentURL: p.ChargeURL, ProviderReference: p.ChargeRef}, nil
}

func (p *fakeProvider) CheckStatus(_ context.Context, _ string) (*paymentPort.StatusResult, error) {
	p.StatusCnt++
	if p.StatusErr != nil {
		return nil, p.StatusErr
	}
	return p.Status, nil
}

// fakeAlerter копит алерты
type fakeAlerter struct {
	mu     sync.Mutex
	Alerts []string
}

func (a *fakeAlerter) SendAlert(_ context.Context, message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Alerts = append(a.Alerts, message)
	return nil
}
