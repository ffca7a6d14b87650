package payments

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lojinha/ecommerce-backend/orders"
)

// PaymentUseCaseInterface define a interface para o use case de pagamentos
type PaymentUseCaseInterface interface {
	CreateCardPayment(ctx context.Context, orderID string) (*Payment, error)
	InitiateMpesaPush(ctx context.Context, orderID, phoneNumber string) (*Payment, error)
	HandlePaymentSucceeded(ctx context.Context, providerReference string) error
	HandlePaymentFailed(ctx context.Context, providerReference string) error
	HandleChargeRefunded(ctx context.Context, providerReference string) error
	GetPaymentByOrder(ctx context.Context, orderID string) (*Payment, error)
}

// PaymentHandler contém os handlers HTTP de pagamentos
type PaymentHandler struct {
	useCase       PaymentUseCaseInterface
	tracer        trace.Tracer
	webhookSecret string
}

// NewPaymentHandler cria uma nova instância de PaymentHandler
func NewPaymentHandler(useCase PaymentUseCaseInterface, tracer trace.Tracer, webhookSecret string) *PaymentHandler {
	return &PaymentHandler{
		useCase:       useCase,
		tracer:        tracer,
		webhookSecret: webhookSecret,
	}
}

// CreateCardPaymentRequest representa a requisição de pagamento com cartão
type CreateCardPaymentRequest struct {
	OrderID string `json:"order_id" binding:"required"`
}

// MpesaPaymentRequest representa a requisição de cobrança via M-Pesa
type MpesaPaymentRequest struct {
	OrderID     string `json:"order_id" binding:"required"`
	PhoneNumber string `json:"phone_number" binding:"required"`
}

func paymentStatusFromError(err error) int {
	switch {
	case errors.Is(err, ErrPaymentNotFound), errors.Is(err, orders.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPaymentAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrGatewayUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// CreateCardPayment cria a intenção de pagamento com cartão para um pedido
func (h *PaymentHandler) CreateCardPayment(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "create_card_payment")
	defer span.End()

	var req CreateCardPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(attribute.String("order_id", req.OrderID))

	payment, err := h.useCase.CreateCardPayment(ctx, req.OrderID)
	if err != nil {
		span.RecordError(err)
		c.JSON(paymentStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, payment)
}

// CreateMpesaPayment inicia uma cobrança push via M-Pesa para um pedido
func (h *PaymentHandler) CreateMpesaPayment(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "create_mpesa_payment")
	defer span.End()

	var req MpesaPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(attribute.String("order_id", req.OrderID))

	payment, err := h.useCase.InitiateMpesaPush(ctx, req.OrderID, req.PhoneNumber)
	if err != nil {
		span.RecordError(err)
		c.JSON(paymentStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, payment)
}

// GetPaymentByOrder busca o pagamento de um pedido
func (h *PaymentHandler) GetPaymentByOrder(c *gin.Context) {
	payment, err := h.useCase.GetPaymentByOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(paymentStatusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, payment)
}
