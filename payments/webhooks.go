package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// SignatureHeader é o cabeçalho que carrega a assinatura HMAC do webhook
const SignatureHeader = "X-Webhook-Signature"

// EventType representa os tipos de evento entregues pelo provedor
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventChargeRefunded   = "charge.refunded"
)

// WebhookEvent representa um evento assíncrono do provedor de pagamento
type WebhookEvent struct {
	Type string           `json:"type"`
	Data WebhookEventData `json:"data"`
}

// WebhookEventData carrega a referência do provedor do evento
type WebhookEventData struct {
	ProviderReference string `json:"provider_reference"`
}

// VerifySignature valida a assinatura HMAC-SHA256 (hex) do corpo bruto do
// webhook contra o segredo compartilhado. Verificador independente,
// executado antes de qualquer lógica de tratamento de evento.
func VerifySignature(payload []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// HandleWebhook recebe os eventos assíncronos do provedor. A assinatura é
// verificada antes de qualquer mutação; assinatura inválida rejeita o
// evento inteiro sem tocar em estado algum.
func (h *PaymentHandler) HandleWebhook(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "payment_webhook")
	defer span.End()

	payload, err := c.GetRawData()
	if err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	signature := c.GetHeader(SignatureHeader)
	if !VerifySignature(payload, signature, h.webhookSecret) {
		span.RecordError(ErrInvalidWebhookSignature)
		log.Printf("❌ [WEBHOOK] invalid signature rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": ErrInvalidWebhookSignature.Error()})
		return
	}

	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event payload"})
		return
	}

	span.SetAttributes(
		attribute.String("event_type", event.Type),
		attribute.String("provider_reference", event.Data.ProviderReference),
	)

	switch event.Type {
	case EventPaymentSucceeded:
		err = h.useCase.HandlePaymentSucceeded(ctx, event.Data.ProviderReference)
	case EventPaymentFailed:
		err = h.useCase.HandlePaymentFailed(ctx, event.Data.ProviderReference)
	case EventChargeRefunded:
		err = h.useCase.HandleChargeRefunded(ctx, event.Data.ProviderReference)
	default:
		// Eventos desconhecidos são confirmados e ignorados
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if err != nil {
		span.RecordError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
