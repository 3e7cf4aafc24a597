package domain

import (
	"fmt"
	"time"
)

// InvoiceStatus статус инвойса
type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "pending"   // создан, ожидает оплаты
	InvoiceStatusPaid      InvoiceStatus = "paid"      // оплачен
	InvoiceStatusExpired   InvoiceStatus = "expired"   // истёк срок оплаты
	InvoiceStatusCancelled InvoiceStatus = "cancelled" // отменён админом
)

// IsTerminal paid/expired/cancelled - конечные статусы, переходы из них запрещены
func (s InvoiceStatus) IsTerminal() bool {
	switch s {
	case InvoiceStatusPaid, InvoiceStatusExpired, InvoiceStatusCancelled:
		return true
	default:
		return false
	}
}

// Invoice счёт на оплату услуги
// invoice_id - человекочитаемый идентификатор (INV-YYMMDD-XXXX), прокидывается
// во все платёжные системы как order_id и служит ключом корреляции
type Invoice struct {
	ID                    int64            `json:"id" db:"id"`
	InvoiceID             string           `json:"invoice_id" db:"invoice_id"`
	RecipientID           int64            `json:"recipient_id" db:"recipient_id"` // telegram_id получателя
	Amount                int64            `json:"amount" db:"amount"`             // сумма в минимальных единицах валюты (центах)
	Currency              string           `json:"currency" db:"currency"`
	ServiceDescription    string           `json:"service_description" db:"service_description"`
	Status                InvoiceStatus    `json:"status" db:"status"`
	PaymentURL            *string          `json:"payment_url,omitempty" db:"payment_url"`
	ExternalInvoiceID     *string          `json:"external_invoice_id,omitempty" db:"external_invoice_id"`
	Provider              *PaymentProvider `json:"provider,omitempty" db:"provider"` // какой провайдер выдал payment_url
	CreatorAdminID        int64            `json:"creator_admin_id" db:"creator_admin_id"`
	PresentationMessageID *int64           `json:"presentation_message_id,omitempty" db:"presentation_message_id"`
	CreatedAt             time.Time        `json:"created_at" db:"created_at"`
	PaidAt                *time.Time       `json:"paid_at,omitempty" db:"paid_at"`
	CancelledAt           *time.Time       `json:"cancelled_at,omitempty" db:"cancelled_at"`
	UpdatedAt             time.Time        `json:"updated_at" db:"updated_at"`
}

// ExpiresAt дедлайн оплаты: created_at + TTL
func (i *Invoice) ExpiresAt(ttl time.Duration) time.Time {
	return i.CreatedAt.Add(ttl)
}

// FormatAmount форматирует сумму для показа пользователю: $150.00
func (i *Invoice) FormatAmount() string {
	symbol := i.Currency
	switch i.Currency {
	case "USD":
		symbol = "$"
	case "EUR":
		symbol = "€"
	case "RUB":
		symbol = "₽"
	}
	return fmt.Sprintf("%s%d.%02d", symbol, i.Amount/100, i.Amount%100)
}

// ApplyOutcome результат попытки применить подтверждение оплаты
type ApplyOutcome string

const (
	ApplyOutcomeApplied         ApplyOutcome = "applied"          // платёж принят впервые, нужно отправить уведомления
	ApplyOutcomeAlreadyApplied  ApplyOutcome = "already_applied"  // дубликат доставки, уведомления НЕ отправлять
	ApplyOutcomeAlreadyTerminal ApplyOutcome = "already_terminal" // инвойс отменён или истёк
	ApplyOutcomeNotFound        ApplyOutcome = "not_found"        // инвойс не найден
)

// ApplyResult результат ApplyPayment: инвойс и получатель нужны вызывающему
// для отправки уведомлений ровно один раз (только при Applied)
type ApplyResult struct {
	Outcome   ApplyOutcome
	Invoice   *Invoice
	Recipient *User
	Payment   *Payment
}

// CancelOutcome результат отмены инвойса
type CancelOutcome string

const (
	CancelOutcomeCancelled       CancelOutcome = "cancelled"
	CancelOutcomeAlreadyTerminal CancelOutcome = "already_terminal"
	CancelOutcomeNotFound        CancelOutcome = "not_found"
)
