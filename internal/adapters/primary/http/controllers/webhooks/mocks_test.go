package webhooks

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/admin/tg-bots/invoice-bot/internal/domain"
	invoiceUC "github.com/admin/tg-bots/invoice-bot/internal/usecases/invoice"
	"github.com/gin-gonic/gin"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeInvoiceRepo считает вызовы ApplyPayment: контроллерным тестам важно
// лишь то, дошло подтверждение до usecase-слоя или нет
type fakeInvoiceRepo struct {
	mu      sync.Mutex
	applied []domain.PaymentConfirmation
}

func (r *fakeInvoiceRepo) appliedConfs() []domain.PaymentConfirmation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.PaymentConfirmation(nil), r.applied...)
}

func (r *fakeInvoiceRepo) Create(context.Context, *domain.Invoice) error { return nil }

func (r *fakeInvoiceRepo) SetChargeDetails(context.Context, string, string, string, domain.PaymentProvider) error {
	return nil
}

func (r *fakeInvoiceRepo) SetPresentationMessageID(context.Context, string, int64) error {
	return nil
}

func (r *fakeInvoiceRepo) GetByInvoiceID(context.Context, string) (*domain.Invoice, error) {
	return nil, domain.ErrInvoiceNotFound
}

func (r *fakeInvoiceRepo) GetByExternalID(context.Context, string) (*domain.Invoice, error) {
	return nil, domain.ErrInvoiceNotFound
}

func (r *fakeInvoiceRepo) GetWithRecipient(context.Context, string) (*domain.Invoice, *domain.User, error) {
	return nil, nil, domain.ErrInvoiceNotFound
}

func (r *fakeInvoiceRepo) ListPending(context.Context) ([]domain.Invoice, error) { return nil, nil }

func (r *fakeInvoiceRepo) ListByRecipient(context.Context, int64) ([]domain.Invoice, error) {
	return nil, nil
}

func (r *fakeInvoiceRepo) ApplyPayment(_ context.Context, conf domain.PaymentConfirmation) (*domain.ApplyResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, conf)
	return &domain.ApplyResult{
		Outcome: domain.ApplyOutcomeApplied,
		Invoice: &domain.Invoice{InvoiceID: conf.InvoiceID, Status: domain.InvoiceStatusPaid},
		Payment: &domain.Payment{InvoiceID: conf.InvoiceID, TransactionID: conf.TransactionID},
	}, nil
}

func (r *fakeInvoiceRepo) Cancel(context.Context, string) (domain.CancelOutcome, error) {
	return domain.CancelOutcomeNotFound, nil
}

func (r *fakeInvoiceRepo) ExpireOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type nopNotifier struct{}

func (nopNotifier) SendInvoice(context.Context, *domain.Invoice, *domain.User) (int64, error) {
	return 0, nil
}

func (nopNotifier) NotifyClientPaymentSuccess(context.Context, *domain.Invoice, *domain.User) error {
	return nil
}

func (nopNotifier) NotifyAdminsPaymentReceived(context.Context, *domain.Invoice, *domain.User) error {
	return nil
}

func (nopNotifier) RemovePaymentButtons(context.Context, *domain.Invoice) error { return nil }

func (nopNotifier) NotifyClientInvoiceCancelled(context.Context, *domain.Invoice, *domain.User) error {
	return nil
}

func newTestInvoiceService(repo *fakeInvoiceRepo) *invoiceUC.Service {
	return invoiceUC.New(nil, repo, nil, nopNotifier{}, nil, nil, time.Hour, testLogger())
}

type routeRegistrar interface {
	RegisterRoutes(router *gin.Engine)
}

// postJSON прогоняет тело через роутер контроллера и возвращает ответ
func postJSON(controller routeRegistrar, path, body string, header http.Header) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	controller.RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}
