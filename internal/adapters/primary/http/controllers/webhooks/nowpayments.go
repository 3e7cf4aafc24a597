package webhooks

import (
	"net/http"

	"log/slog"

	"github.com/admin/tg-bots/invoice-bot/internal/adapters/secondary/payment/nowpayments"
	"github.com/admin/tg-bots/invoice-bot/internal/domain"
	"github.com/admin/tg-bots/invoice-bot/internal/pkg/invoiceid"
	"github.com/admin/tg-bots/invoice-bot/internal/ports/archive"
	invoiceUC "github.com/admin/tg-bots/invoice-bot/internal/usecases/invoice"
	"github.com/gin-gonic/gin"
)

// NOWPaymentsController принимает IPN-уведомления NOWPayments
type NOWPaymentsController struct {
	base
	Invoices *invoiceUC.Service
	Provider *nowpayments.Provider
}

func NewNOWPayments(
	invoices *invoiceUC.Service,
	provider *nowpayments.Provider,
	webhookArchive archive.IWebhookArchive,
	strictVerify bool,
	log *slog.Logger,
) *NOWPaymentsController {
	return &NOWPaymentsController{
		base:     base{Archive: webhookArchive, StrictVerify: strictVerify, Log: log},
		Invoices: invoices,
		Provider: provider,
	}
}

func (c *NOWPaymentsController) RegisterRoutes(router *gin.Engine) {
	router.POST("/webhook/nowpayments", c.handleIPN)
}

func (c *NOWPaymentsController) handleIPN(ctx *gin.Context) {
	body, err := c.readBody(ctx)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	c.archiveBody(ctx, domain.PaymentProviderNOWPayments, body)

	verified := c.Provider.VerifyWebhook(body, ctx.Request.Header)
	if !c.checkSignature(verified, domain.PaymentProviderNOWPayments, ctx.Request.RemoteAddr) {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	ipn, err := nowpayments.ParseIPN(body)
	if err != nil {
		c.Log.Error("failed to parse ipn", "error", err)
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	c.Log.Info("ipn received",
		"order_id", ipn.OrderID,
		"payment_id", ipn.PaymentID.String(),
		"status", ipn.PaymentStatus,
		"verified", verified,
	)

	// order_id задаём мы при создании платежа, чужой формат значит мусор
	// или чей-то чужой IPN. Отвечаем 200, чтобы NOWPayments не ретраил
	if !invoiceid.Valid(ipn.OrderID) {
		c.Log.Warn("ipn with malformed order_id ignored",
			"order_id", ipn.OrderID,
			"payment_id", ipn.PaymentID.String(),
		)
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	switch {
	case ipn.IsPaid():
		method := ipn.PayCurrency
		if method == "" {
			method = "crypto"
		}
		conf := domain.PaymentConfirmation{
			InvoiceID:     ipn.OrderID,
			TransactionID: ipn.PaymentID.String(),
			Category:      domain.PaymentCategoryCrypto,
			Provider:      domain.PaymentProviderNOWPayments,
			Method:        method,
		}
		if _, err := c.Invoices.ConfirmPayment(ctx.Request.Context(), conf); err != nil {
			c.Log.Error("failed to confirm ipn payment",
				"error", err,
				"order_id", ipn.OrderID,
			)
			// 5xx заставит NOWPayments повторить доставку
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process"})
			return
		}

	case ipn.IsFailed():
		c.Log.Warn("payment failed",
			"order_id", ipn.OrderID,
			"status", ipn.PaymentStatus,
		)

	default:
		// промежуточные статусы (waiting, confirming, partially_paid)
		c.Log.Debug("intermediate ipn status ignored",
			"order_id", ipn.OrderID,
			"status", ipn.PaymentStatus,
		)
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}
