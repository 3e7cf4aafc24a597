package invoice

import (
	"context"
	"errors"
	"testing"

	"github.com/admin/tg-bots/invoice-bot/internal/domain"
	paymentPort "github.com/admin/tg-bots/invoice-bot/internal/ports/payment"
)

func TestPollPendingCharges(t *testing.T) {
	ctx := context.Background()

	t.Run("оплаченный счёт применяется", func(t *testing.T) {
		repo := newFakeInvoiceRepo()
		repo.addUser(&domain.User{TelegramID: 300, FirstName: "Анна"})
		pendingInvoice(repo, "INV-260801-0201", 300)
		if err := repo.SetChargeDetails(ctx, "INV-260801-0201", "https://pay.example/1", "ext-201", domain.PaymentProviderNOWPayments); err != nil {
			t.Fatal(err)
		}

		provider := cryptoProvider()
		provider.Status = &paymentPort.StatusResult{Paid: true, Method: "BTC"}
		svc, notifier, _, _ := newTestService(repo, newFakeUserRepo(),
			map[domain.PaymentProvider]paymentPort.IPaymentProvider{provider.name: provider})

		if err := svc.PollPendingCharges(ctx); err != nil {
			t.Fatalf("PollPendingCharges failed: %v", err)
		}

		inv, err := repo.GetByInvoiceID(ctx, "INV-260801-0201")
		if err != nil {
			t.Fatal(err)
		}
		if inv.Status != domain.InvoiceStatusPaid {
			t.Fatalf("expected paid, got %s", inv.Status)
		}
		if notifier.ClientSuccess != 1 {
			t.Errorf("expected 1 client notification, got %d", notifier.ClientSuccess)
		}

		// повторный тик не даёт новых уведомлений
		if err := svc.PollPendingCharges(ctx); err != nil {
			t.Fatalf("second poll failed: %v", err)
		}
		if notifier.ClientSuccess != 1 {
			t.Errorf("second tick must not notify again, got %d", notifier.ClientSuccess)
		}
	})

	t.Run("инвойс без внешнего счёта пропускается", func(t *testing.T) {
		repo := newFakeInvoiceRepo()
		pendingInvoice(repo, "INV-260801-0202", 300)

		provider := cryptoProvider()
		provider.Status = &paymentPort.StatusResult{Paid: true}
		svc, notifier, _, _ := newTestService(repo, newFakeUserRepo(),
			map[domain.PaymentProvider]paymentPort.IPaymentProvider{provider.name: provider})

		if err := svc.PollPendingCharges(ctx); err != nil {
			t.Fatalf("PollPendingCharges failed: %v", err)
		}
		if provider.StatusCnt != 0 {
			t.Errorf("provider must not be queried, got %d calls", provider.StatusCnt)
		}
		if notifier.ClientSuccess != 0 {
			t.Error("no notifications expected")
		}
	})

	t.Run("провайдер без API статуса пропускается", func(t *testing.T) {
		repo := newFakeInvoiceRepo()
		pendingInvoice(repo, "INV-260801-0203", 300)
		if err := repo.SetChargeDetails(ctx, "INV-260801-0203", "https://pay.example/3", "ext-203", domain.PaymentProviderWayForPay); err != nil {
			t.Fatal(err)
		}

		provider := &fakeProvider{
			name:      domain.PaymentProviderWayForPay,
			category:  domain.PaymentCategoryCardInt,
			StatusErr: paymentPort.ErrStatusNotSupported,
		}
		svc, _, _, _ := newTestService(repo, newFakeUserRepo(),
			map[domain.PaymentProvider]paymentPort.IPaymentProvider{provider.name: provider})

		if err := svc.PollPendingCharges(ctx); err != nil {
			t.Fatalf("unsupported status API must not fail the sweep: %v", err)
		}

		inv, err := repo.GetByInvoiceID(ctx, "INV-260801-0203")
		if err != nil {
			t.Fatal(err)
		}
		if inv.Status != domain.InvoiceStatusPending {
			t.Errorf("invoice must stay pending, got %s", inv.Status)
		}
	})

	t.Run("ошибка по одному инвойсу не прерывает обход", func(t *testing.T) {
		repo := newFakeInvoiceRepo()
		repo.addUser(&domain.User{TelegramID: 300, FirstName: "Анна"})
		pendingInvoice(repo, "INV-260801-0204", 300)
		pendingInvoice(repo, "INV-260801-0205", 300)
		if err := repo.SetChargeDetails(ctx, "INV-260801-0204", "u", "ext-204", domain.PaymentProviderLava); err != nil {
			t.Fatal(err)
		}
		if err := repo.SetChargeDetails(ctx, "INV-260801-0205", "u", "ext-205", domain.PaymentProviderNOWPayments); err != nil {
			t.Fatal(err)
		}

		broken := &fakeProvider{
			name:      domain.PaymentProviderLava,
			category:  domain.PaymentCategoryCardRU,
			StatusErr: errors.New("timeout"),
		}
		healthy := cryptoProvider()
		healthy.Status = &paymentPort.StatusResult{Paid: true, Method: "BTC"}
		svc, _, _, _ := newTestService(repo, newFakeUserRepo(),
			map[domain.PaymentProvider]paymentPort.IPaymentProvider{
				broken.name:  broken,
				healthy.name: healthy,
			})

		if err := svc.PollPendingCharges(ctx); err != nil {
			t.Fatalf("sweep must survive per-invoice errors: %v", err)
		}

		inv, err := repo.GetByInvoiceID(ctx, "INV-260801-0205")
		if err != nil {
			t.Fatal(err)
		}
		if inv.Status != domain.InvoiceStatusPaid {
			t.Errorf("healthy provider's invoice must be applied, got %s", inv.Status)
		}
	})
}

func TestCheckCharge(t *testing.T) {
	ctx := context.Background()

	t.Run("подтверждает оплату по запросу", func(t *testing.T) {
		repo := newFakeInvoiceRepo()
		repo.addUser(&domain.User{TelegramID: 300, FirstName: "Анна"})
		pendingInvoice(repo, "INV-260801-0211", 300)
		if err := repo.SetChargeDetails(ctx, "INV-260801-0211", "u", "ext-211", domain.PaymentProviderNOWPayments); err != nil {
			t.Fatal(err)
		}

		provider := cryptoProvider()
		provider.Status = &paymentPort.StatusResult{Paid: true, Method: "USDT"}
		svc, _, _, _ := newTestService(repo, newFakeUserRepo(),
			map[domain.PaymentProvider]paymentPort.IPaymentProvider{provider.name: provider})

		inv, err := svc.CheckCharge(ctx, "INV-260801-0211")
		if err != nil {
			t.Fatalf("CheckCharge failed: %v", err)
		}
		if inv.Status != domain.InvoiceStatusPaid {
			t.Errorf("expected paid, got %s", inv.Status)
		}
	})

	t.Run("неоплаченный счёт остаётся pending", func(t *testing.T) {
		repo := newFakeInvoiceRepo()
		pendingInvoice(repo, "INV-260801-0212", 300)
		if err := repo.SetChargeDetails(ctx, "INV-260801-0212", "u", "ext-212", domain.PaymentProviderNOWPayments); err != nil {
			t.Fatal(err)
		}

		provider := cryptoProvider()
		provider.Status = &paymentPort.StatusResult{Paid: false}
		svc, _, _, _ := newTestService(repo, newFakeUserRepo(),
			map[domain.PaymentProvider]paymentPort.IPaymentProvider{provider.name: provider})

		inv, err := svc.CheckCharge(ctx, "INV-260801-0212")
		if err != nil {
			t.Fatalf("CheckCharge failed: %v", err)
		}
		if inv.Status != domain.InvoiceStatusPending {
			t.Errorf("expected pending, got %s", inv.Status)
		}
	})

	t.Run("терминальный инвойс возвращается как есть", func(t *testing.T) {
		repo := newFakeInvoiceRepo()
		inv := pendingInvoice(repo, "INV-260801-0213", 300)
		if _, err := repo.Cancel(ctx, inv.InvoiceID); err != nil {
			t.Fatal(err)
		}

		provider := cryptoProvider()
		svc, _, _, _ := newTestService(repo, newFakeUserRepo(),
			map[domain.PaymentProvider]paymentPort.IPaymentProvider{provider.name: provider})

		got, err := svc.CheckCharge(ctx, inv.InvoiceID)
		if err != nil {
			t.Fatalf("CheckCharge failed: %v", err)
		}
		if got.Status != domain.InvoiceStatusCancelled {
			t.Errorf("expected cancelled, got %s", got.Status)
		}
		if provider.StatusCnt != 0 {
			t.Errorf("terminal invoice must not hit the provider, got %d calls", provider.StatusCnt)
		}
	})
}
