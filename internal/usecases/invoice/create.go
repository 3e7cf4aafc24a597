package invoice

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/admin/tg-bots/invoice-bot/internal/domain"
	"github.com/admin/tg-bots/invoice-bot/internal/pkg/invoiceid"
)

// границы длины описания услуги в символах, не байтах
const (
	minDescriptionLen = 10
	maxDescriptionLen = 500
)

// CreateInvoiceParams параметры создания инвойса
type CreateInvoiceParams struct {
	// RecipientTelegramID либо RecipientUsername, одно из двух
	RecipientTelegramID int64
	RecipientUsername   string

	Amount             int64 // минимальные единицы валюты
	Currency           string
	ServiceDescription string
	Category           domain.PaymentCategory
	ClientEmail        string // нужен карточным провайдерам
	CreatorAdminID     int64
}

// CreateInvoice создаёт инвойс и счёт у провайдера.
// invoice_id генерируется до любых внешних вызовов; отказ провайдера не
// откатывает создание - инвойс остаётся pending без payment_url, админ может
// перевыпустить ссылку позже
func (s *Service) CreateInvoice(ctx context.Context, params CreateInvoiceParams) (*domain.Invoice, error) {
	recipient, err := s.resolveRecipient(ctx, params)
	if err != nil {
		return nil, err
	}

	if params.Amount <= 0 {
		return nil, domain.NewBusinessError("amount must be positive")
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(params.ServiceDescription)); n < minDescriptionLen || n > maxDescriptionLen {
		return nil, domain.NewBusinessError(fmt.Sprintf("service description must be %d-%d characters", minDescriptionLen, maxDescriptionLen))
	}
	currency := strings.ToUpper(params.Currency)
	if currency == "" {
		currency = "USD"
	}

	inv := &domain.Invoice{
		InvoiceID:          invoiceid.New(s.now()),
		RecipientID:        recipient.TelegramID,
		Amount:             params.Amount,
		Currency:           currency,
		ServiceDescription: params.ServiceDescription,
		Status:             domain.InvoiceStatusPending,
		CreatorAdminID:     params.CreatorAdminID,
	}
	if err := s.InvoiceRepo.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to persist invoice: %w", err)
	}

	s.Log.Info("invoice created",
		"invoice_id", inv.InvoiceID,
		"recipient_id", inv.RecipientID,
		"amount", inv.Amount,
		"currency", inv.Currency,
		"category", params.Category,
	)

	// создание счёта у провайдера - best effort
	s.attachCharge(ctx, inv, params.Category, params.ClientEmail)

	if messageID, err := s.Notifier.SendInvoice(ctx, inv, recipient); err != nil {
		s.Log.Warn("failed to send invoice to recipient",
			"error", err,
			"invoice_id", inv.InvoiceID,
			"recipient_id", recipient.TelegramID,
		)
	} else if err := s.InvoiceRepo.SetPresentationMessageID(ctx, inv.InvoiceID, messageID); err != nil {
		s.Log.Warn("failed to record presentation message id",
			"error", err,
			"invoice_id", inv.InvoiceID,
		)
	} else {
		inv.PresentationMessageID = &messageID
	}

	return inv, nil
}

// CreateCardLink перевыпускает платёжную ссылку для существующего
// pending-инвойса через карточный канал. Используется когда инвойс был
// создан деградированным либо клиент попросил другой способ оплаты
func (s *Service) CreateCardLink(ctx context.Context, invoiceID string, category domain.PaymentCategory, clientEmail string) (*domain.Invoice, error) {
	if category != domain.PaymentCategoryCardRU && category != domain.PaymentCategoryCardInt {
		return nil, domain.NewBusinessError("card link requires a card category")
	}

	inv, err := s.InvoiceRepo.GetByInvoiceID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status != domain.InvoiceStatusPending {
		return nil, domain.NewBusinessError(fmt.Sprintf("invoice %s is %s, cannot reissue payment link", invoiceID, inv.Status))
	}

	provider, ok := s.providerByCategory(category)
	if !ok {
		return nil, domain.NewBusinessError(fmt.Sprintf("no provider for category %s", category))
	}

	charge, err := provider.CreateCharge(ctx, inv, clientEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to create charge: %w", err)
	}

	if err := s.InvoiceRepo.SetChargeDetails(ctx, inv.InvoiceID, charge.PaymentURL, charge.ProviderReference, provider.Name()); err != nil {
		return nil, err
	}
	inv.PaymentURL = &charge.PaymentURL
	inv.ExternalInvoiceID = &charge.ProviderReference
	providerName := provider.Name()
	inv.Provider = &providerName

	s.Log.Info("card payment link issued",
		"invoice_id", inv.InvoiceID,
		"provider", providerName,
	)
	return inv, nil
}

// attachCharge создаёт счёт у провайдера и записывает детали в инвойс.
// Любая ошибка здесь не фатальна для создания инвойса
func (s *Service) attachCharge(ctx context.Context, inv *domain.Invoice, category domain.PaymentCategory, clientEmail string) {
	provider, ok := s.providerByCategory(category)
	if !ok {
		s.Log.Warn("no provider for category, invoice left without payment url",
			"invoice_id", inv.InvoiceID,
			"category", category,
		)
		return
	}

	charge, err := provider.CreateCharge(ctx, inv, clientEmail)
	if err != nil {
		s.Log.Error("failed to create provider charge, invoice left degraded",
			"error", err,
			"invoice_id", inv.InvoiceID,
			"provider", provider.Name(),
		)
		s.alert(ctx, fmt.Sprintf("⚠️ Не удалось создать счёт у провайдера %s для %s: %v",
			provider.Name(), inv.InvoiceID, err))
		return
	}

	if err := s.InvoiceRepo.SetChargeDetails(ctx, inv.InvoiceID, charge.PaymentURL, charge.ProviderReference, provider.Name()); err != nil {
		s.Log.Error("failed to record charge details",
			"error", err,
			"invoice_id", inv.InvoiceID,
		)
		return
	}

	inv.PaymentURL = &charge.PaymentURL
	inv.ExternalInvoiceID = &charge.ProviderReference
	providerName := provider.Name()
	inv.Provider = &providerName
}

func (s *Service) resolveRecipient(ctx context.Context, params CreateInvoiceParams) (*domain.User, error) {
	if params.RecipientTelegramID != 0 {
		return s.UserRepo.GetByTelegramID(ctx, params.RecipientTelegramID)
	}
	username := strings.TrimPrefix(params.RecipientUsername, "@")
	if username == "" {
		return nil, domain.ErrUserNotFound
	}
	return s.UserRepo.GetByUsername(ctx, username)
}

func (s *Service) alert(ctx context.Context, message string) {
	if s.Alerter == nil {
		return
	}
	if err := s.Alerter.SendAlert(ctx, message); err != nil {
		s.Log.Warn("failed to send alert", "error", err)
	}
}
