package webhooks

import (
	"net/http"

	"log/slog"

	"github.com/admin/tg-bots/invoice-bot/internal/adapters/secondary/payment/wayforpay"
	"github.com/admin/tg-bots/invoice-bot/internal/domain"
	"github.com/admin/tg-bots/invoice-bot/internal/pkg/invoiceid"
	"github.com/admin/tg-bots/invoice-bot/internal/ports/archive"
	invoiceUC "github.com/admin/tg-bots/invoice-bot/internal/usecases/invoice"
	"github.com/gin-gonic/gin"
)

// WayForPayController принимает serviceUrl-уведомления WayForPay
type WayForPayController struct {
	base
	Invoices *invoiceUC.Service
	Provider *wayforpay.Provider
}

func NewWayForPay(
	invoices *invoiceUC.Service,
	provider *wayforpay.Provider,
	webhookArchive archive.IWebhookArchive,
	strictVerify bool,
	log *slog.Logger,
) *WayForPayController {
	return &WayForPayController{
		base:     base{Archive: webhookArchive, StrictVerify: strictVerify, Log: log},
		Invoices: invoices,
		Provider: provider,
	}
}

func (c *WayForPayController) RegisterRoutes(router *gin.Engine) {
	router.POST("/webhook/wayforpay", c.handleWebhook)
}

func (c *WayForPayController) handleWebhook(ctx *gin.Context) {
	body, err := c.readBody(ctx)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	c.archiveBody(ctx, domain.PaymentProviderWayForPay, body)

	verified := c.Provider.VerifyWebhook(body, ctx.Request.Header)
	if !c.checkSignature(verified, domain.PaymentProviderWayForPay, ctx.Request.RemoteAddr) {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	wh, err := wayforpay.ParseWebhook(body)
	if err != nil {
		c.Log.Error("failed to parse wayforpay webhook", "error", err)
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	c.Log.Info("wayforpay webhook received",
		"order_reference", wh.OrderReference,
		"transaction_status", wh.TransactionStatus,
		"verified", verified,
	)

	// orderReference формируем мы, из него восстанавливается наш invoice id.
	// Неузнаваемый формат квитируем без обработки
	if !invoiceid.Valid(wh.InvoiceID()) {
		c.Log.Warn("wayforpay webhook with malformed order reference ignored",
			"order_reference", wh.OrderReference,
		)
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	if wh.IsPaid() {
		var email *string
		if wh.Email != "" {
			email = &wh.Email
		}
		conf := domain.PaymentConfirmation{
			InvoiceID:     wh.InvoiceID(),
			TransactionID: wh.OrderReference,
			Category:      domain.PaymentCategoryCardInt,
			Provider:      domain.PaymentProviderWayForPay,
			Method:        "card",
			ClientEmail:   email,
		}
		if _, err := c.Invoices.ConfirmPayment(ctx.Request.Context(), conf); err != nil {
			c.Log.Error("failed to confirm wayforpay payment",
				"error", err,
				"order_reference", wh.OrderReference,
			)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process"})
			return
		}
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}
