package webhooks

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/http"
	"testing"

	"github.com/admin/tg-bots/invoice-bot/internal/adapters/secondary/payment/nowpayments"
)

func newNOWPaymentsController(repo *fakeInvoiceRepo, cfg *nowpayments.Config, strict bool) *NOWPaymentsController {
	log := testLogger()
	provider := nowpayments.NewProvider(cfg, log)
	return NewNOWPayments(newTestInvoiceService(repo), provider, nil, strict, log)
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestNOWPaymentsIPN(t *testing.T) {
	t.Run("оплата по валидному order_id подтверждается", func(t *testing.T) {
		repo := &fakeInvoiceRepo{}
		c := newNOWPaymentsController(repo, &nowpayments.Config{}, false)

		body := `{"order_id":"INV-260801-AB12","payment_id":555,"payment_status":"finished","pay_currency":"usdttrc20"}`
		rec := postJSON(c, "/webhook/nowpayments", body, nil)

		if rec.Code != http.StatusOK {
			t.Fatalf("ожидался 200, получен %d: %s", rec.Code, rec.Body.String())
		}
		confs := repo.appliedConfs()
		if len(confs) != 1 {
			t.Fatalf("ожидалось одно подтверждение, получено %d", len(confs))
		}
		if confs[0].InvoiceID != "INV-260801-AB12" {
			t.Errorf("неверный invoice_id: %q", confs[0].InvoiceID)
		}
		if confs[0].TransactionID != "555" {
			t.Errorf("неверный transaction_id: %q", confs[0].TransactionID)
		}
	})

	t.Run("чужой формат order_id не доходит до подтверждения", func(t *testing.T) {
		repo := &fakeInvoiceRepo{}
		c := newNOWPaymentsController(repo, &nowpayments.Config{}, false)

		for _, orderID := range []string{"evil-order", "INV-1-XXXX", "", "INV-260801-AB12-extra"} {
			body := `{"order_id":"` + orderID + `","payment_id":1,"payment_status":"finished"}`
			rec := postJSON(c, "/webhook/nowpayments", body, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("order_id %q: ожидался 200, получен %d", orderID, rec.Code)
			}
		}
		if n := len(repo.appliedConfs()); n != 0 {
			t.Fatalf("подтверждений быть не должно, получено %d", n)
		}
	})

	t.Run("строгий режим отклоняет неподписанный запрос", func(t *testing.T) {
		repo := &fakeInvoiceRepo{}
		c := newNOWPaymentsController(repo, &nowpayments.Config{IPNSecret: "topsecret"}, true)

		body := `{"order_id":"INV-260801-AB12","payment_id":555,"payment_status":"finished"}`
		rec := postJSON(c, "/webhook/nowpayments", body, nil)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("ожидался 401, получен %d", rec.Code)
		}
		if n := len(repo.appliedConfs()); n != 0 {
			t.Fatalf("подтверждений быть не должно, получено %d", n)
		}
	})

	t.Run("строгий режим принимает подписанный запрос", func(t *testing.T) {
		repo := &fakeInvoiceRepo{}
		secret := "topsecret"
		c := newNOWPaymentsController(repo, &nowpayments.Config{IPNSecret: secret}, true)

		// тело уже в каноническом виде: ключи отсортированы, без пробелов
		body := `{"order_id":"INV-260801-AB12","payment_id":555,"payment_status":"finished"}`
		header := http.Header{}
		header.Set("x-nowpayments-sig", signBody(secret, []byte(body)))

		rec := postJSON(c, "/webhook/nowpayments", body, header)

		if rec.Code != http.StatusOK {
			t.Fatalf("ожидался 200, получен %d: %s", rec.Code, rec.Body.String())
		}
		if n := len(repo.appliedConfs()); n != 1 {
			t.Fatalf("ожидалось одно подтверждение, получено %d", n)
		}
	})

	t.Run("промежуточный статус не трогает инвойс", func(t *testing.T) {
		repo := &fakeInvoiceRepo{}
		c := newNOWPaymentsController(repo, &nowpayments.Config{}, false)

		body := `{"order_id":"INV-260801-AB12","payment_id":555,"payment_status":"waiting"}`
		rec := postJSON(c, "/webhook/nowpayments", body, nil)

		if rec.Code != http.StatusOK {
			t.Fatalf("ожидался 200, получен %d", rec.Code)
		}
		if n := len(repo.appliedConfs()); n != 0 {
			t.Fatalf("подтверждений быть не должно, получено %d", n)
		}
	})
}
