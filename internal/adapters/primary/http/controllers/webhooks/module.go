package webhooks

import (
	"io"
	"time"

	"log/slog"

	"github.com/admin/tg-bots/invoice-bot/internal/domain"
	"github.com/admin/tg-bots/invoice-bot/internal/ports/archive"
	"github.com/gin-gonic/gin"
)

// maxBodySize предел тела вебхука, реальные уведомления занимают сотни байт
const maxBodySize = 1 << 20

// base общая часть вебхук-контроллеров: чтение тела, архивирование,
// политика проверки подписи
type base struct {
	Archive      archive.IWebhookArchive // nil допустим, архив выключен
	StrictVerify bool                    // непроверяемые вебхуки отклоняются с 401
	Log          *slog.Logger
}

// readBody читает тело запроса с ограничением размера
func (b *base) readBody(ctx *gin.Context) ([]byte, error) {
	return io.ReadAll(io.LimitReader(ctx.Request.Body, maxBodySize))
}

// archiveBody сохраняет сырое тело в объектное хранилище. Недоступность
// архива не влияет на обработку платежа
func (b *base) archiveBody(ctx *gin.Context, provider domain.PaymentProvider, body []byte) {
	if b.Archive == nil {
		return
	}
	if err := b.Archive.Store(ctx.Request.Context(), provider, time.Now().UTC(), body); err != nil {
		b.Log.Warn("failed to archive webhook body",
			"error", err,
			"provider", provider,
		)
	}
}

// checkSignature применяет политику проверки подписи. Возвращает false,
// когда запрос нужно отклонить
func (b *base) checkSignature(verified bool, provider domain.PaymentProvider, remoteAddr string) bool {
	if verified {
		return true
	}
	b.Log.Warn("webhook signature verification failed",
		"provider", provider,
		"remote_addr", remoteAddr,
		"strict", b.StrictVerify,
	)
	return !b.StrictVerify
}
