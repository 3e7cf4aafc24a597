package wayforpay

import (
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"testing"

	"log/slog"
)

func testProvider(secret string) *Provider {
	return NewProvider(&Config{
		MerchantLogin:  "test_merchant",
		MerchantSecret: secret,
		MerchantDomain: "example.com",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func hmacMD5(secret string, fields ...string) string {
	mac := hmac.New(md5.New, []byte(secret))
	mac.Write([]byte(strings.Join(fields, ";")))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		minor int64
		want  string
	}{
		{1000, "10"},
		{1055, "10.55"},
		{1005, "10.05"},
		{100, "1"},
		{15050, "150.50"},
		{1, "0.01"},
	}
	for _, tc := range tests {
		if got := formatAmount(tc.minor); got != tc.want {
			t.Errorf("formatAmount(%d) = %q, want %q", tc.minor, got, tc.want)
		}
	}
}

func TestVerifyWebhook(t *testing.T) {
	const secret = "flk3409refn54t54t*FNJRET"

	webhookBody := func(signature string) []byte {
		return []byte(fmt.Sprintf(`{
			"merchantAccount": "test_merchant",
			"orderReference": "INV-260801-0001_ts_1756700000",
			"amount": 150.50,
			"currency": "USD",
			"authCode": "123456",
			"cardPan": "41****1111",
			"transactionStatus": "Approved",
			"reasonCode": 1100,
			"merchantSignature": "%s"
		}`, signature))
	}

	t.Run("валидная подпись", func(t *testing.T) {
		sig := hmacMD5(secret,
			"test_merchant",
			"INV-260801-0001_ts_1756700000",
			"150.50",
			"USD",
			"123456",
			"41****1111",
			"Approved",
			"1100",
		)
		if !testProvider(secret).VerifyWebhook(webhookBody(sig), nil) {
			t.Error("valid signature rejected")
		}
	})

	t.Run("подделанная подпись", func(t *testing.T) {
		sig := hmacMD5("wrong-secret",
			"test_merchant", "INV-260801-0001_ts_1756700000", "150.50",
			"USD", "123456", "41****1111", "Approved", "1100",
		)
		if testProvider(secret).VerifyWebhook(webhookBody(sig), nil) {
			t.Error("forged signature accepted")
		}
	})

	t.Run("без секрета проверка всегда отрицательная", func(t *testing.T) {
		if testProvider("").VerifyWebhook(webhookBody("anything"), nil) {
			t.Error("unconfigured secret must never verify")
		}
	})

	t.Run("невалидный json", func(t *testing.T) {
		if testProvider(secret).VerifyWebhook([]byte("not json"), nil) {
			t.Error("broken body accepted")
		}
	})
}

func TestParseWebhook(t *testing.T) {
	body := []byte(`{
		"orderReference": "INV-260801-0001_ts_1756700000",
		"transactionStatus": "Approved",
		"cardPan": "41****1111",
		"email": "client@example.com",
		"amount": 150.50,
		"currency": "USD"
	}`)

	wh, err := ParseWebhook(body)
	if err != nil {
		t.Fatalf("ParseWebhook failed: %v", err)
	}
	if !wh.IsPaid() {
		t.Error("Approved must be paid")
	}
	if wh.InvoiceID() != "INV-260801-0001" {
		t.Errorf("InvoiceID: got %q, want INV-260801-0001", wh.InvoiceID())
	}
	if wh.Email != "client@example.com" {
		t.Errorf("email: got %q", wh.Email)
	}
}

func TestWebhookInvoiceID(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{"INV-260801-0001_ts_1756700000", "INV-260801-0001"},
		{"INV-260801-0001", "INV-260801-0001"},
		{"_ts_123", "_ts_123"}, // пустой префикс не срезается
	}
	for _, tc := range tests {
		wh := &Webhook{OrderReference: tc.ref}
		if got := wh.InvoiceID(); got != tc.want {
			t.Errorf("InvoiceID(%q) = %q, want %q", tc.ref, got, tc.want)
		}
	}
}

func TestWebhookIsPaid(t *testing.T) {
	for _, status := range []string{"Declined", "Pending", "Expired", "Refunded", ""} {
		wh := &Webhook{TransactionStatus: status}
		if wh.IsPaid() {
			t.Errorf("status %q must not be paid", status)
		}
	}
}
