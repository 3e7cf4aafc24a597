package webhooks

import (
	"errors"
	"net/http"

	"log/slog"

	"github.com/admin/tg-bots/invoice-bot/internal/adapters/secondary/payment/lava"
	"github.com/admin/tg-bots/invoice-bot/internal/domain"
	"github.com/admin/tg-bots/invoice-bot/internal/ports/archive"
	invoiceUC "github.com/admin/tg-bots/invoice-bot/internal/usecases/invoice"
	"github.com/gin-gonic/gin"
)

// LavaController принимает вебхуки Lava.top.
// Lava не знает наш invoice_id, инвойс ищется по contractId
type LavaController struct {
	base
	Invoices *invoiceUC.Service
	Provider *lava.Provider
}

func NewLava(
	invoices *invoiceUC.Service,
	provider *lava.Provider,
	webhookArchive archive.IWebhookArchive,
	strictVerify bool,
	log *slog.Logger,
) *LavaController {
	return &LavaController{
		base:     base{Archive: webhookArchive, StrictVerify: strictVerify, Log: log},
		Invoices: invoices,
		Provider: provider,
	}
}

func (c *LavaController) RegisterRoutes(router *gin.Engine) {
	router.POST("/webhook/lava", c.handleWebhook)
}

func (c *LavaController) handleWebhook(ctx *gin.Context) {
	body, err := c.readBody(ctx)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	c.archiveBody(ctx, domain.PaymentProviderLava, body)

	verified := c.Provider.VerifyWebhook(body, ctx.Request.Header)
	if !c.checkSignature(verified, domain.PaymentProviderLava, ctx.Request.RemoteAddr) {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	wh, err := lava.ParseWebhook(body)
	if err != nil {
		c.Log.Error("failed to parse lava webhook", "error", err)
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	c.Log.Info("lava webhook received",
		"event_type", wh.EventType,
		"contract_id", wh.ContractID,
		"status", wh.Status,
		"verified", verified,
	)

	if !wh.IsPaid() {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	if wh.ContractID == "" {
		c.Log.Warn("lava webhook without contract id")
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	inv, err := c.Invoices.GetByExternalID(ctx.Request.Context(), wh.ContractID)
	if err != nil {
		if errors.Is(err, domain.ErrInvoiceNotFound) {
			// неизвестный счёт: повтор доставки не поможет, отвечаем 200
			c.Log.Warn("lava webhook for unknown contract",
				"contract_id", wh.ContractID,
			)
			ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		c.Log.Error("failed to resolve invoice by contract id",
			"error", err,
			"contract_id", wh.ContractID,
		)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process"})
		return
	}

	var email *string
	if wh.Buyer.Email != "" {
		email = &wh.Buyer.Email
	}
	conf := domain.PaymentConfirmation{
		InvoiceID:     inv.InvoiceID,
		TransactionID: wh.ContractID,
		Category:      domain.PaymentCategoryCardRU,
		Provider:      domain.PaymentProviderLava,
		Method:        "card",
		ClientEmail:   email,
	}
	if _, err := c.Invoices.ConfirmPayment(ctx.Request.Context(), conf); err != nil {
		c.Log.Error("failed to confirm lava payment",
			"error", err,
			"invoice_id", inv.InvoiceID,
		)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}
