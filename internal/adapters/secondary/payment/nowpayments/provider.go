package nowpayments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/admin/tg-bots/invoice-bot/internal/domain"
	"github.com/admin/tg-bots/invoice-bot/internal/pkg/httpretry"
	paymentPort "github.com/admin/tg-bots/invoice-bot/internal/ports/payment"
)

const (
	baseURL        = "https://api.nowpayments.io/v1"
	requestTimeout = 15 * time.Second

	sigHeader = "x-nowpayments-sig"
)

// Provider реализует IPaymentProvider для NOWPayments (криптовалюта)
type Provider struct {
	cfg  *Config
	http *httpretry.Client
	log  *slog.Logger
}

// NewProvider создаёт новый провайдер NOWPayments
func NewProvider(cfg *Config, log *slog.Logger) *Provider {
	return &Provider{
		cfg:  cfg,
		http: httpretry.New(requestTimeout, log),
		log:  log,
	}
}

func (p *Provider) Name() domain.PaymentProvider {
	return domain.PaymentProviderNOWPayments
}

func (p *Provider) Category() domain.PaymentCategory {
	return domain.PaymentCategoryCrypto
}

type createInvoiceRequest struct {
	PriceAmount      float64 `json:"price_amount"`
	PriceCurrency    string  `json:"price_currency"`
	OrderID          string  `json:"order_id"`
	OrderDescription string  `json:"order_description"`
	IPNCallbackURL   string  `json:"ipn_callback_url,omitempty"`
	// success_url и cancel_url не указываем: NOWPayments покажет свою
	// страницу об успехе, а бот уведомит сам через IPN/поллер
}

type createInvoiceResponse struct {
	ID         json.Number `json:"id"`
	InvoiceURL string      `json:"invoice_url"`
	Message    string      `json:"message"`
}

// CreateCharge создаёт счёт через NOWPayments Invoice API
func (p *Provider) CreateCharge(ctx context.Context, invoice *domain.Invoice, _ string) (*paymentPort.ChargeResult, error) {
	if !p.cfg.IsConfigured() {
		return nil, domain.NewBusinessError("nowpayments is not configured")
	}

	description := invoice.ServiceDescription
	if len(description) > 255 {
		description = description[:255]
	}

	reqBody := createInvoiceRequest{
		PriceAmount:      float64(invoice.Amount) / 100,
		PriceCurrency:    strings.ToLower(invoice.Currency),
		OrderID:          invoice.InvoiceID,
		OrderDescription: description,
		IPNCallbackURL:   p.cfg.CallbackURL,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal invoice request: %w", err)
	}

	p.log.Info("creating nowpayments invoice",
		"invoice_id", invoice.InvoiceID,
		"amount", invoice.Amount,
		"currency", invoice.Currency,
	)

	resp, err := p.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/invoice", bytes.NewReader(jsonData))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", p.cfg.APIKey)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("nowpayments request failed: %w", err)
	}

	var result createInvoiceResponse
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse nowpayments response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		p.log.Error("nowpayments rejected invoice",
			"invoice_id", invoice.InvoiceID,
			"status_code", resp.StatusCode,
			"message", result.Message,
		)
		return nil, domain.NewBusinessError(fmt.Sprintf("nowpayments error: %s", result.Message))
	}
	if result.InvoiceURL == "" {
		return nil, domain.NewBusinessError("nowpayments returned no invoice url")
	}

	p.log.Info("nowpayments invoice created",
		"invoice_id", invoice.InvoiceID,
		"payment_id", result.ID.String(),
	)

	return &paymentPort.ChargeResult{
		PaymentURL:        result.InvoiceURL,
		ProviderReference: result.ID.String(),
	}, nil
}

// статусы NOWPayments:
// waiting, confirming, confirmed, sending, partially_paid, finished,
// failed, refunded, expired
func isPaidStatus(status string) bool {
	return status == "finished" || status == "confirmed"
}

func isFailedStatus(status string) bool {
	return status == "failed" || status == "expired" || status == "refunded"
}

type paymentStatusResponse struct {
	PaymentStatus string      `json:"payment_status"`
	PayCurrency   string      `json:"pay_currency"`
	PriceAmount   json.Number `json:"price_amount"`
}

// CheckStatus запрашивает состояние платежа по его идентификатору
func (p *Provider) CheckStatus(ctx context.Context, providerReference string) (*paymentPort.StatusResult, error) {
	if !p.cfg.IsConfigured() {
		return nil, domain.NewBusinessError("nowpayments is not configured")
	}

	resp, err := p.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/payment/"+providerReference, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("x-api-key", p.cfg.APIKey)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("nowpayments status request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nowpayments status check returned %d", resp.StatusCode)
	}

	var result paymentStatusResponse
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse status response: %w", err)
	}

	method := result.PayCurrency
	if method == "" {
		method = "crypto"
	}

	return &paymentPort.StatusResult{
		Paid:   isPaidStatus(result.PaymentStatus),
		Failed: isFailedStatus(result.PaymentStatus),
		Method: method,
	}, nil
}

// VerifyWebhook проверяет подпись IPN из заголовка x-nowpayments-sig.
// NOWPayments подписывает JSON с отсортированными ключами, поэтому тело
// канонизируется перед вычислением HMAC-SHA512
func (p *Provider) VerifyWebhook(body []byte, header http.Header) bool {
	if !p.cfg.IsConfigured() || p.cfg.IPNSecret == "" {
		p.log.Warn("ipn signature check skipped - not configured")
		return false
	}

	signature := header.Get(sigHeader)
	if signature == "" {
		return false
	}

	canonical, err := canonicalJSON(body)
	if err != nil {
		p.log.Warn("failed to canonicalize ipn body", "error", err)
		return false
	}

	mac := hmac.New(sha512.New, []byte(p.cfg.IPNSecret))
	mac.Write(canonical)
	expected := hex.EncodeToString(mac.Sum(nil))

	valid := hmac.Equal([]byte(signature), []byte(expected))
	if !valid {
		p.log.Warn("invalid ipn signature")
	}
	return valid
}

// canonicalJSON перекодирует JSON с сортировкой ключей и без лишних пробелов.
// json.Number сохраняет исходную запись чисел, иначе 10.0 превратилось бы в 10
// и подпись не сошлась бы
func canonicalJSON(body []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var data interface{}
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		return nil, fmt.Errorf("failed to encode json: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// IPN разобранное уведомление NOWPayments
type IPN struct {
	OrderID       string      `json:"order_id"`
	PaymentID     json.Number `json:"payment_id"`
	PaymentStatus string      `json:"payment_status"`
	PayCurrency   string      `json:"pay_currency"`
	PriceAmount   json.Number `json:"price_amount"`
}

// ParseIPN разбирает тело IPN-уведомления
func ParseIPN(body []byte) (*IPN, error) {
	var ipn IPN
	if err := json.Unmarshal(body, &ipn); err != nil {
		return nil, fmt.Errorf("failed to parse ipn: %w", err)
	}
	return &ipn, nil
}

// IsPaid платёж завершён успешно
func (i *IPN) IsPaid() bool {
	return isPaidStatus(i.PaymentStatus)
}

// IsFailed платёж провалился или истёк
func (i *IPN) IsFailed() bool {
	return isFailedStatus(i.PaymentStatus)
}
