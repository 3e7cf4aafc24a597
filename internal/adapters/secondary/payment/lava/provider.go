package lava

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/admin/tg-bots/invoice-bot/internal/domain"
	"github.com/admin/tg-bots/invoice-bot/internal/pkg/httpretry"
	paymentPort "github.com/admin/tg-bots/invoice-bot/internal/ports/payment"
)

const (
	apiURL         = "https://gate.lava.top/api/v3/invoice"
	requestTimeout = 30 * time.Second
)

// serviceTypeByKeyword маппинг ключевых слов из описания услуги на короткий
// тип оффера. Описание "Размещение рекламы" даёт тип "ad" и т.д.
var serviceTypeByKeyword = []struct {
	keyword string
	stype   string
}{
	{"реклам", "ad"},
	{"верификац", "ver"},
	{"сертификац", "ver"},
}

// Provider реализует IPaymentProvider для Lava.top (карты банков РФ).
// Lava V3 не принимает произвольную сумму: оплата идёт через предсозданные
// офферы, поэтому сумма счёта округляется до ближайшего подходящего оффера
type Provider struct {
	cfg    *Config
	offers map[string]string // "тип_цена" -> offerId
	http   *httpretry.Client
	log    *slog.Logger
}

// NewProvider создаёт новый провайдер Lava.top
func NewProvider(cfg *Config, log *slog.Logger) (*Provider, error) {
	offers, err := cfg.ParseOfferMap()
	if err != nil {
		return nil, err
	}
	return &Provider{
		cfg:    cfg,
		offers: offers,
		http:   httpretry.New(requestTimeout, log),
		log:    log,
	}, nil
}

func (p *Provider) Name() domain.PaymentProvider {
	return domain.PaymentProviderLava
}

func (p *Provider) Category() domain.PaymentCategory {
	return domain.PaymentCategoryCardRU
}

// selectOffer подбирает offerId по описанию услуги и сумме в рублях.
// Приоритет: точное совпадение, ближайший оффер с ценой >= суммы,
// максимальный доступный
func (p *Provider) selectOffer(amountRub int64, description string) (string, int64, error) {
	serviceType := "ad"
	descLower := strings.ToLower(description)
	for _, m := range serviceTypeByKeyword {
		if strings.Contains(descLower, m.keyword) {
			serviceType = m.stype
			break
		}
	}

	prefix := serviceType + "_"
	available := map[int64]string{}
	for key, offerID := range p.offers {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		price, err := strconv.ParseInt(key[len(prefix):], 10, 64)
		if err != nil {
			continue
		}
		available[price] = offerID
	}
	if len(available) == 0 {
		return "", 0, domain.NewBusinessError(fmt.Sprintf("no lava offers for service type %q", serviceType))
	}

	if offerID, ok := available[amountRub]; ok {
		p.log.Info("lava offer selected", "amount_rub", amountRub, "match", "exact", "offer_id", offerID)
		return offerID, amountRub, nil
	}

	prices := make([]int64, 0, len(available))
	for price := range available {
		prices = append(prices, price)
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })

	for _, price := range prices {
		if price >= amountRub {
			p.log.Info("lava offer selected",
				"amount_rub", amountRub,
				"match", "nearest_higher",
				"offer_price", price,
				"offer_id", available[price])
			return available[price], price, nil
		}
	}

	// ни один оффер не покрывает сумму, берём максимальный доступный
	best := prices[len(prices)-1]
	p.log.Warn("no lava offer covers the amount, using the largest one",
		"amount_rub", amountRub,
		"offer_price", best)
	return available[best], best, nil
}

type createInvoiceRequest struct {
	Email    string `json:"email"`
	OfferID  string `json:"offerId"`
	Currency string `json:"currency"`
}

type createInvoiceResponse struct {
	ID         string `json:"id"`
	PaymentURL string `json:"paymentUrl"`
	URL        string `json:"url"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// CreateCharge создаёт счёт через Lava.top V3. Сумма оффера определяется
// самим оффером, поэтому произвольный amount округляется через selectOffer
func (p *Provider) CreateCharge(ctx context.Context, invoice *domain.Invoice, clientEmail string) (*paymentPort.ChargeResult, error) {
	if !p.cfg.IsConfigured() {
		return nil, domain.NewBusinessError("lava is not configured")
	}
	if clientEmail == "" {
		return nil, domain.NewBusinessError("lava requires client email")
	}

	offerID, _, err := p.selectOffer(invoice.Amount/100, invoice.ServiceDescription)
	if err != nil {
		return nil, err
	}

	reqBody := createInvoiceRequest{
		Email:    clientEmail,
		OfferID:  offerID,
		Currency: "RUB",
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal invoice request: %w", err)
	}

	p.log.Info("creating lava invoice",
		"invoice_id", invoice.InvoiceID,
		"offer_id", offerID,
	)

	resp, err := p.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(jsonData))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Api-Key", p.cfg.APIKey)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("lava request failed: %w", err)
	}

	var result createInvoiceResponse
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse lava response (%d): %w", resp.StatusCode, err)
	}

	// 201 = успешное создание контракта
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		errMsg := result.Error
		if errMsg == "" {
			errMsg = result.Message
		}
		p.log.Error("lava rejected invoice",
			"invoice_id", invoice.InvoiceID,
			"status_code", resp.StatusCode,
			"message", errMsg,
		)
		return nil, domain.NewBusinessError(fmt.Sprintf("lava error (%d): %s", resp.StatusCode, errMsg))
	}

	paymentURL := result.PaymentURL
	if paymentURL == "" {
		paymentURL = result.URL
	}
	if paymentURL == "" {
		return nil, domain.NewBusinessError("lava returned no payment url")
	}

	p.log.Info("lava invoice created",
		"invoice_id", invoice.InvoiceID,
		"payment_id", result.ID,
	)

	return &paymentPort.ChargeResult{
		PaymentURL:        paymentURL,
		ProviderReference: result.ID,
	}, nil
}

// VerifyWebhook проверяет вебхук Lava V3: либо Bearer-токен в Authorization,
// либо HMAC-SHA256 от тела в заголовке Signature
func (p *Provider) VerifyWebhook(body []byte, header http.Header) bool {
	if p.cfg.APIKey == "" {
		return false
	}

	if auth := header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return hmac.Equal([]byte(strings.TrimPrefix(auth, "Bearer ")), []byte(p.cfg.APIKey))
	}

	signature := header.Get("Signature")
	if signature == "" {
		return false
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		p.log.Warn("failed to compact lava webhook body", "error", err)
		return false
	}

	mac := hmac.New(sha256.New, []byte(p.cfg.APIKey))
	mac.Write(compact.Bytes())
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// CheckStatus не поддерживается: Lava V3 подтверждает оплату только вебхуком
func (p *Provider) CheckStatus(ctx context.Context, providerReference string) (*paymentPort.StatusResult, error) {
	return nil, paymentPort.ErrStatusNotSupported
}

// Webhook разобранное уведомление Lava.top
type Webhook struct {
	EventType  string `json:"eventType"`
	ContractID string `json:"contractId"`
	OrderID    string `json:"orderId"`
	Status     string `json:"status"`
	Buyer      struct {
		Email string `json:"email"`
	} `json:"buyer"`
}

// ParseWebhook разбирает тело вебхука
func ParseWebhook(body []byte) (*Webhook, error) {
	var wh Webhook
	if err := json.Unmarshal(body, &wh); err != nil {
		return nil, fmt.Errorf("failed to parse lava webhook: %w", err)
	}
	return &wh, nil
}

// IsPaid оплата завершена
func (w *Webhook) IsPaid() bool {
	switch strings.ToLower(w.Status) {
	case "completed", "success", "paid":
		return true
	}
	return strings.EqualFold(w.EventType, "payment.success")
}
