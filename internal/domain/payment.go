package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentCategory категория платёжного канала
type PaymentCategory string

const (
	PaymentCategoryCrypto  PaymentCategory = "crypto"   // криптовалюта
	PaymentCategoryCardRU  PaymentCategory = "card_ru"  // карта банка РФ
	PaymentCategoryCardInt PaymentCategory = "card_int" // зарубежная карта
)

// PaymentProvider платёжный провайдер
type PaymentProvider string

const (
	PaymentProviderNOWPayments PaymentProvider = "nowpayments"
	PaymentProviderLava        PaymentProvider = "lava"
	PaymentProviderWayForPay   PaymentProvider = "wayforpay"
	PaymentProviderManual      PaymentProvider = "manual" // ручное подтверждение админом
)

// Payment запись о подтверждённом платеже. Создаётся ровно один раз на
// реальный платёж и никогда не изменяется; transaction_id уникален глобально
// и служит якорем идемпотентности всей системы
type Payment struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	InvoiceID     string          `json:"invoice_id" db:"invoice_id"` // человекочитаемый invoice_id, не суррогатный ключ
	TransactionID string          `json:"transaction_id" db:"transaction_id"`
	Category      PaymentCategory `json:"category" db:"category"`
	Provider      PaymentProvider `json:"provider" db:"provider"`
	Method        string          `json:"method" db:"method"` // BTC, USDT, card и т.д.
	ClientEmail   *string         `json:"client_email,omitempty" db:"client_email"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	ConfirmedAt   time.Time       `json:"confirmed_at" db:"confirmed_at"`
}

// PaymentConfirmation внешнее подтверждение оплаты от любого источника
// (вебхук, поллер, ручная команда админа)
type PaymentConfirmation struct {
	InvoiceID     string
	TransactionID string
	Category      PaymentCategory
	Provider      PaymentProvider
	Method        string
	ClientEmail   *string
}
