package payment

import (
	"context"
	"errors"
	"net/http"

	"github.com/admin/tg-bots/invoice-bot/internal/domain"
)

// ErrStatusNotSupported провайдер не умеет отдавать статус счёта по запросу,
// подтверждение приходит только вебхуком
var ErrStatusNotSupported = errors.New("status polling is not supported by provider")

// ChargeResult успешно созданный счёт у провайдера
type ChargeResult struct {
	PaymentURL        string // ссылка на страницу оплаты
	ProviderReference string // идентификатор счёта в системе провайдера
}

// StatusResult состояние счёта у провайдера (для поллера)
type StatusResult struct {
	Paid   bool
	Failed bool
	Method string // валюта/способ, которым реально оплатили (BTC, card и т.д.)
}

// IPaymentProvider интерфейс платёжного провайдера.
// CreateCharge возвращает domain.BusinessError для бизнес-отказов (нет
// конфигурации, провайдер отклонил) - такие ошибки не ретраятся; транспортные
// ошибки возвращаются как есть после ограниченных ретраев внутри адаптера
type IPaymentProvider interface {
	Name() domain.PaymentProvider
	Category() domain.PaymentCategory

	CreateCharge(ctx context.Context, invoice *domain.Invoice, clientEmail string) (*ChargeResult, error)

	// VerifyWebhook проверяет подлинность входящего вебхука. Если секрет не
	// сконфигурирован, возвращает false - адаптер никогда не выдаёт
	// непроверенный запрос за проверенный
	VerifyWebhook(body []byte, header http.Header) bool

	CheckStatus(ctx context.Context, providerReference string) (*StatusResult, error)
}
