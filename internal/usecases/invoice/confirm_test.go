package invoice

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/admin/tg-bots/invoice-bot/internal/domain"
	paymentPort "github.com/admin/tg-bots/invoice-bot/internal/ports/payment"
)

func newTestService(
	repo *fakeInvoiceRepo,
	users *fakeUserRepo,
	providers map[domain.PaymentProvider]paymentPort.IPaymentProvider,
) (*Service, *countingNotifier, *countingProducer, *fakeAlerter) {
	notifier := &countingNotifier{}
	producer := &countingProducer{}
	alerter := &fakeAlerter{}
	svc := New(users, repo, providers, notifier, alerter, producer, 24*time.Hour, testLogger())
	return svc, notifier, producer, alerter
}

func pendingInvoice(repo *fakeInvoiceRepo, invoiceID string, recipientID int64) *domain.Invoice {
	inv := &domain.Invoice{
		InvoiceID:          invoiceID,
		RecipientID:        recipientID,
		Amount:             15000,
		Currency:           "USD",
		ServiceDescription: "размещение рекламы",
		Status:             domain.InvoiceStatusPending,
		CreatorAdminID:     1,
	}
	if err := repo.Create(context.Background(), inv); err != nil {
		panic(err)
	}
	return inv
}

func TestConfirmPayment_AppliesOnce(t *testing.T) {
	ctx := context.Background()
	repo := newFakeInvoiceRepo()
	repo.addUser(&domain.User{TelegramID: 100, FirstName: "Иван"})
	pendingInvoice(repo, "INV-260801-0001", 100)

	svc, notifier, producer, _ := newTestService(repo, newFakeUserRepo(), nil)

	conf := domain.PaymentConfirmation{
		InvoiceID:     "INV-260801-0001",
		TransactionID: "tx-1",
		Category:      domain.PaymentCategoryCrypto,
		Provider:      domain.PaymentProviderNOWPayments,
		Method:        "BTC",
	}

	result, err := svc.ConfirmPayment(ctx, conf)
	if err != nil {
		t.Fatalf("ConfirmPayment failed: %v", err)
	}
	if result.Outcome != domain.ApplyOutcomeApplied {
		t.Fatalf("expected Applied, got %s", result.Outcome)
	}
	if result.Invoice.Status != domain.InvoiceStatusPaid {
		t.Errorf("expected paid status, got %s", result.Invoice.Status)
	}
	if notifier.ClientSuccess != 1 || notifier.AdminNotified != 1 {
		t.Errorf("expected exactly one client and one admin notification, got %d/%d",
			notifier.ClientSuccess, notifier.AdminNotified)
	}
	if producer.Published != 1 {
		t.Errorf("expected 1 published event, got %d", producer.Published)
	}
}

func TestConfirmPayment_DuplicateDeliveryIsSilent(t *testing.T) {
	ctx := context.Background()
	repo := newFakeInvoiceRepo()
	repo.addUser(&domain.User{TelegramID: 100, FirstName: "Иван"})
	pendingInvoice(repo, "INV-260801-0002", 100)

	svc, notifier, producer, _ := newTestService(repo, newFakeUserRepo(), nil)

	conf := domain.PaymentConfirmation{
		InvoiceID:     "INV-260801-0002",
		TransactionID: "tx-dup",
		Category:      domain.PaymentCategoryCrypto,
		Provider:      domain.PaymentProviderNOWPayments,
		Method:        "ETH",
	}

	for i := 0; i < 3; i++ {
		result, err := svc.ConfirmPayment(ctx, conf)
		if err != nil {
			t.Fatalf("delivery %d failed: %v", i, err)
		}
		want := domain.ApplyOutcomeApplied
		if i > 0 {
			want = domain.ApplyOutcomeAlreadyApplied
		}
		if result.Outcome != want {
			t.Fatalf("delivery %d: expected %s, got %s", i, want, result.Outcome)
		}
	}

	if notifier.ClientSuccess != 1 || notifier.AdminNotified != 1 {
		t.Errorf("duplicates must not notify: got %d/%d", notifier.ClientSuccess, notifier.AdminNotified)
	}
	if producer.Published != 1 {
		t.Errorf("duplicates must not publish events: got %d", producer.Published)
	}
}

func TestConfirmPayment_ConcurrentDeliveries(t *testing.T) {
	ctx := context.Background()
	repo := newFakeInvoiceRepo()
	repo.addUser(&domain.User{TelegramID: 100, FirstName: "Иван"})
	pendingInvoice(repo, "INV-260801-0010", 100)

	svc, notifier, producer, _ := newTestService(repo, newFakeUserRepo(), nil)

	conf := domain.PaymentConfirmation{
		InvoiceID:     "INV-260801-0010",
		TransactionID: "tx-race",
		Category:      domain.PaymentCategoryCrypto,
		Provider:      domain.PaymentProviderNOWPayments,
	}

	const workers = 10
	var wg sync.WaitGroup
	var applied atomic.Int32
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.ConfirmPayment(ctx, conf)
			if err != nil {
				t.Errorf("concurrent delivery failed: %v", err)
				return
			}
			if result.Outcome == domain.ApplyOutcomeApplied {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()

	if applied.Load() != 1 {
		t.Errorf("exactly one delivery must win, got %d", applied.Load())
	}
	if notifier.ClientSuccess != 1 || notifier.AdminNotified != 1 {
		t.Errorf("exactly one notification per payment, got %d/%d",
			notifier.ClientSuccess, notifier.AdminNotified)
	}
	if producer.Published != 1 {
		t.Errorf("exactly one event per payment, got %d", producer.Published)
	}
}

// Вебхук и поллер приносят один платёж под разными transaction_id, но
// инвойс с external_invoice_id нормализует оба к одному ключу
func TestConfirmPayment_WebhookAndPollerCollapse(t *testing.T) {
	ctx := context.Background()
	repo := newFakeInvoiceRepo()
	repo.addUser(&domain.User{TelegramID: 100, FirstName: "Иван"})
	pendingInvoice(repo, "INV-260801-0003", 100)
	if err := repo.SetChargeDetails(ctx, "INV-260801-0003", "https://pay.example/x", "ext-42", domain.PaymentProviderNOWPayments); err != nil {
		t.Fatal(err)
	}

	svc, notifier, _, _ := newTestService(repo, newFakeUserRepo(), nil)

	webhook := domain.PaymentConfirmation{
		InvoiceID:     "INV-260801-0003",
		TransactionID: "webhook-payment-id-555",
		Category:      domain.PaymentCategoryCrypto,
		Provider:      domain.PaymentProviderNOWPayments,
		Method:        "BTC",
	}
	poller := domain.PaymentConfirmation{
		InvoiceID:     "INV-260801-0003",
		TransactionID: "ext-42",
		Category:      domain.PaymentCategoryCrypto,
		Provider:      domain.PaymentProviderNOWPayments,
		Method:        "BTC",
	}

	first, err := svc.ConfirmPayment(ctx, webhook)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.ConfirmPayment(ctx, poller)
	if err != nil {
		t.Fatal(err)
	}

	if first.Outcome != domain.ApplyOutcomeApplied {
		t.Errorf("webhook delivery: expected Applied, got %s", first.Outcome)
	}
	if second.Outcome != domain.ApplyOutcomeAlreadyApplied {
		t.Errorf("poller delivery: expected AlreadyApplied, got %s", second.Outcome)
	}
	if notifier.ClientSuccess != 1 {
		t.Errorf("expected single notification, got %d", notifier.ClientSuccess)
	}
}

func TestConfirmPayment_TerminalInvoiceAlerts(t *testing.T) {
	ctx := context.Background()
	repo := newFakeInvoiceRepo()
	inv := pendingInvoice(repo, "INV-260801-0004", 100)
	if _, err := repo.Cancel(ctx, inv.InvoiceID); err != nil {
		t.Fatal(err)
	}

	svc, notifier, _, alerter := newTestService(repo, newFakeUserRepo(), nil)

	result, err := svc.ConfirmPayment(ctx, domain.PaymentConfirmation{
		InvoiceID:     inv.InvoiceID,
		TransactionID: "tx-late",
		Category:      domain.PaymentCategoryCrypto,
		Provider:      domain.PaymentProviderNOWPayments,
	})
	if err != nil {
		t.Fatalf("ConfirmPayment failed: %v", err)
	}
	if result.Outcome != domain.ApplyOutcomeAlreadyTerminal {
		t.Fatalf("expected AlreadyTerminal, got %s", result.Outcome)
	}
	if len(alerter.Alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerter.Alerts))
	}
	if !strings.Contains(alerter.Alerts[0], inv.InvoiceID) {
		t.Errorf("alert must mention invoice id: %q", alerter.Alerts[0])
	}
	if notifier.ClientSuccess != 0 {
		t.Errorf("terminal invoice must not notify client")
	}
}

func TestConfirmPayment_UnknownInvoice(t *testing.T) {
	repo := newFakeInvoiceRepo()
	svc, notifier, _, _ := newTestService(repo, newFakeUserRepo(), nil)

	result, err := svc.ConfirmPayment(context.Background(), domain.PaymentConfirmation{
		InvoiceID:     "INV-000000-0000",
		TransactionID: "tx-ghost",
	})
	if err != nil {
		t.Fatalf("ConfirmPayment failed: %v", err)
	}
	if result.Outcome != domain.ApplyOutcomeNotFound {
		t.Fatalf("expected NotFound, got %s", result.Outcome)
	}
	if notifier.ClientSuccess != 0 || notifier.AdminNotified != 0 {
		t.Error("unknown invoice must not notify")
	}
}

func TestMarkPaidManually(t *testing.T) {
	ctx := context.Background()
	repo := newFakeInvoiceRepo()
	repo.addUser(&domain.User{TelegramID: 100, FirstName: "Иван"})
	pendingInvoice(repo, "INV-260801-0005", 100)

	svc, notifier, _, _ := newTestService(repo, newFakeUserRepo(), nil)

	result, err := svc.MarkPaidManually(ctx, "INV-260801-0005", 1)
	if err != nil {
		t.Fatalf("MarkPaidManually failed: %v", err)
	}
	if result.Outcome != domain.ApplyOutcomeApplied {
		t.Fatalf("expected Applied, got %s", result.Outcome)
	}
	if result.Payment.Provider != domain.PaymentProviderManual {
		t.Errorf("expected manual provider, got %s", result.Payment.Provider)
	}
	if !strings.HasPrefix(result.Payment.TransactionID, "MANUAL-") {
		t.Errorf("unexpected transaction id %q", result.Payment.TransactionID)
	}
	if notifier.ClientSuccess != 1 {
		t.Errorf("manual confirmation must notify once, got %d", notifier.ClientSuccess)
	}

	// повторная ручная отметка ложится в AlreadyApplied по статусу paid
	again, err := svc.MarkPaidManually(ctx, "INV-260801-0005", 1)
	if err != nil {
		t.Fatalf("second MarkPaidManually failed: %v", err)
	}
	if again.Outcome != domain.ApplyOutcomeAlreadyApplied {
		t.Fatalf("expected AlreadyApplied on repeat, got %s", again.Outcome)
	}
	if notifier.ClientSuccess != 1 {
		t.Errorf("repeat must not notify again, got %d", notifier.ClientSuccess)
	}
}
