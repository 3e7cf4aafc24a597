package wayforpay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/md5"
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
	apiURL         = "https://api.wayforpay.com/api"
	requestTimeout = 30 * time.Second
)

// Provider реализует IPaymentProvider для WayForPay (зарубежные карты)
type Provider struct {
	cfg  *Config
	http *httpretry.Client
	log  *slog.Logger
	now  func() time.Time
}

// NewProvider создаёт новый провайдер WayForPay
func NewProvider(cfg *Config, log *slog.Logger) *Provider {
	return &Provider{
		cfg:  cfg,
		http: httpretry.New(requestTimeout, log),
		log:  log,
		now:  time.Now,
	}
}

func (p *Provider) Name() domain.PaymentProvider {
	return domain.PaymentProviderWayForPay
}

func (p *Provider) Category() domain.PaymentCategory {
	return domain.PaymentCategoryCardInt
}

// formatAmount форматирует сумму в минимальных единицах для подписи.
// WayForPay считает подпись от "10", не "10.00", поэтому целые суммы
// пишутся без дробной части
func formatAmount(minor int64) string {
	if minor%100 == 0 {
		return fmt.Sprintf("%d", minor/100)
	}
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}

func (p *Provider) sign(fields []string) string {
	mac := hmac.New(md5.New, []byte(p.cfg.MerchantSecret))
	mac.Write([]byte(strings.Join(fields, ";")))
	return hex.EncodeToString(mac.Sum(nil))
}

type createInvoiceRequest struct {
	TransactionType   string   `json:"transactionType"`
	MerchantAccount   string   `json:"merchantAccount"`
	MerchantDomain    string   `json:"merchantDomainName"`
	MerchantSignature string   `json:"merchantSignature"`
	APIVersion        int      `json:"apiVersion"`
	Language          string   `json:"language"`
	ServiceURL        string   `json:"serviceUrl,omitempty"`
	OrderReference    string   `json:"orderReference"`
	OrderDate         int64    `json:"orderDate"`
	Amount            string   `json:"amount"`
	Currency          string   `json:"currency"`
	ProductName       []string `json:"productName"`
	ProductPrice      []string `json:"productPrice"`
	ProductCount      []int    `json:"productCount"`
	ClientEmail       string   `json:"clientEmail,omitempty"`
}

type createInvoiceResponse struct {
	InvoiceURL     string      `json:"invoiceUrl"`
	OrderReference string      `json:"orderReference"`
	Reason         string      `json:"reason"`
	ReasonCode     json.Number `json:"reasonCode"`
}

// CreateCharge создаёт счёт через WayForPay CREATE_INVOICE.
// orderReference дополняется меткой времени: WayForPay отклоняет повторное
// использование референса, а админ может перевыпускать ссылку для того же
// инвойса
func (p *Provider) CreateCharge(ctx context.Context, invoice *domain.Invoice, clientEmail string) (*paymentPort.ChargeResult, error) {
	if !p.cfg.IsConfigured() {
		return nil, domain.NewBusinessError("wayforpay is not configured")
	}

	orderDate := p.now().Unix()
	orderRef := fmt.Sprintf("%s_ts_%d", invoice.InvoiceID, orderDate)
	amountStr := formatAmount(invoice.Amount)

	// порядок полей в подписи фиксирован протоколом
	signature := p.sign([]string{
		p.cfg.MerchantLogin,
		p.cfg.MerchantDomain,
		orderRef,
		fmt.Sprintf("%d", orderDate),
		amountStr,
		invoice.Currency,
		invoice.ServiceDescription,
		"1",
		amountStr,
	})

	reqBody := createInvoiceRequest{
		TransactionType:   "CREATE_INVOICE",
		MerchantAccount:   p.cfg.MerchantLogin,
		MerchantDomain:    p.cfg.MerchantDomain,
		MerchantSignature: signature,
		APIVersion:        1,
		Language:          "RU",
		ServiceURL:        p.cfg.ServiceURL,
		OrderReference:    orderRef,
		OrderDate:         orderDate,
		Amount:            amountStr,
		Currency:          invoice.Currency,
		ProductName:       []string{invoice.ServiceDescription},
		ProductPrice:      []string{amountStr},
		ProductCount:      []int{1},
		ClientEmail:       clientEmail,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal invoice request: %w", err)
	}

	p.log.Info("creating wayforpay invoice",
		"invoice_id", invoice.InvoiceID,
		"order_reference", orderRef,
		"amount", amountStr,
	)

	resp, err := p.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(jsonData))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("wayforpay request failed: %w", err)
	}

	var result createInvoiceResponse
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse wayforpay response: %w", err)
	}

	if result.InvoiceURL == "" {
		reason := result.Reason
		if reason == "" {
			reason = result.ReasonCode.String()
		}
		p.log.Error("wayforpay rejected invoice",
			"invoice_id", invoice.InvoiceID,
			"status_code", resp.StatusCode,
			"reason", reason,
		)
		return nil, domain.NewBusinessError(fmt.Sprintf("wayforpay error: %s", reason))
	}

	p.log.Info("wayforpay invoice created",
		"invoice_id", invoice.InvoiceID,
		"order_reference", result.OrderReference,
	)

	return &paymentPort.ChargeResult{
		PaymentURL:        result.InvoiceURL,
		ProviderReference: result.OrderReference,
	}, nil
}

// VerifyWebhook проверяет HMAC-MD5 подпись вебхука. Подпись считается от
// фиксированного набора полей тела, соединённых через ";". Числа сохраняются
// в исходной записи (json.Number), иначе 10.0 превратилось бы в 10 и подпись
// не сошлась бы
func (p *Provider) VerifyWebhook(body []byte, _ http.Header) bool {
	if p.cfg.MerchantSecret == "" {
		return false
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var data map[string]interface{}
	if err := dec.Decode(&data); err != nil {
		p.log.Warn("failed to parse wayforpay webhook body", "error", err)
		return false
	}

	str := func(key string) string {
		v, ok := data[key]
		if !ok || v == nil {
			return ""
		}
		return fmt.Sprint(v)
	}

	expected := p.sign([]string{
		str("merchantAccount"),
		str("orderReference"),
		str("amount"),
		str("currency"),
		str("authCode"),
		str("cardPan"),
		str("transactionStatus"),
		str("reasonCode"),
	})

	return hmac.Equal([]byte(expected), []byte(str("merchantSignature")))
}

// CheckStatus не поддерживается: подтверждение приходит только вебхуком
func (p *Provider) CheckStatus(ctx context.Context, providerReference string) (*paymentPort.StatusResult, error) {
	return nil, paymentPort.ErrStatusNotSupported
}

// Webhook разобранное уведомление WayForPay
type Webhook struct {
	OrderReference    string      `json:"orderReference"`
	TransactionStatus string      `json:"transactionStatus"`
	CardPan           string      `json:"cardPan"`
	Email             string      `json:"email"`
	Amount            json.Number `json:"amount"`
	Currency          string      `json:"currency"`
}

// ParseWebhook разбирает тело вебхука
func ParseWebhook(body []byte) (*Webhook, error) {
	var wh Webhook
	if err := json.Unmarshal(body, &wh); err != nil {
		return nil, fmt.Errorf("failed to parse wayforpay webhook: %w", err)
	}
	return &wh, nil
}

// IsPaid оплата завершена
func (w *Webhook) IsPaid() bool {
	return w.TransactionStatus == "Approved"
}

// InvoiceID извлекает наш invoice_id из orderReference
// (формат INV-XXXXXX-XXXX_ts_1234567890)
func (w *Webhook) InvoiceID() string {
	if idx := strings.Index(w.OrderReference, "_ts_"); idx > 0 {
		return w.OrderReference[:idx]
	}
	return w.OrderReference
}
