package orders

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lojinha/ecommerce-backend/catalog"
)

// OrderUseCaseInterface define a interface para o use case de pedidos
type OrderUseCaseInterface interface {
	Checkout(ctx context.Context, userID string, items []CheckoutItemInput) (*Order, error)
	AddItem(ctx context.Context, orderID string, input CheckoutItemInput) (*OrderItem, error)
	UpdateItemQuantity(ctx context.Context, orderID, itemID string, newQuantity int) (*OrderItem, error)
	RemoveItem(ctx context.Context, orderID, itemID string) error
	CancelOrder(ctx context.Context, orderID string) error
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	ListOrders(ctx context.Context, userID string) ([]Order, error)
	CreateCoupon(ctx context.Context, code string, discount decimal.Decimal, validFrom, validTo time.Time, active bool, productID *string) (*Coupon, error)
	ListActiveCoupons(ctx context.Context) ([]Coupon, error)
}

// OrderHandler contém os handlers HTTP de pedidos
type OrderHandler struct {
	useCase OrderUseCaseInterface
	tracer  trace.Tracer
}

// NewOrderHandler cria uma nova instância de OrderHandler
func NewOrderHandler(useCase OrderUseCaseInterface, tracer trace.Tracer) *OrderHandler {
	return &OrderHandler{
		useCase: useCase,
		tracer:  tracer,
	}
}

// CheckoutItemRequest representa um item da requisição de checkout
type CheckoutItemRequest struct {
	ProductID  string `json:"product_id" binding:"required"`
	Quantity   int    `json:"quantity" binding:"required,gt=0"`
	CouponCode string `json:"coupon_code"`
}

// CheckoutRequest representa a requisição de checkout
type CheckoutRequest struct {
	Items []CheckoutItemRequest `json:"items"`
}

// UpdateItemRequest representa a requisição de alteração de quantidade
type UpdateItemRequest struct {
	Quantity int `json:"quantity" binding:"required,gt=0"`
}

// CreateCouponRequest representa a requisição para criar um cupom
type CreateCouponRequest struct {
	Code      string          `json:"code" binding:"required"`
	Discount  decimal.Decimal `json:"discount" binding:"required"`
	ValidFrom time.Time       `json:"valid_from" binding:"required"`
	ValidTo   time.Time       `json:"valid_to" binding:"required"`
	Active    bool            `json:"active"`
	ProductID *string         `json:"product_id"`
}

// statusFromError mapeia os erros de validação do domínio para códigos HTTP.
// Toda rejeição carrega o motivo da pré-condição que falhou.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrItemNotFound),
		errors.Is(err, ErrCouponNotFound),
		errors.Is(err, catalog.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrOrderAlreadyFinal),
		errors.Is(err, ErrOrderNotModifiable):
		return http.StatusConflict
	case errors.Is(err, ErrEmptyCart),
		errors.Is(err, ErrCouponNotApplicable),
		errors.Is(err, catalog.ErrInsufficientStock):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Checkout cria um pedido a partir do carrinho do usuário
func (h *OrderHandler) Checkout(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "checkout")
	defer span.End()

	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
		return
	}

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.Int("item_count", len(req.Items)),
	)

	items := make([]CheckoutItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, CheckoutItemInput{
			ProductID:  it.ProductID,
			Quantity:   it.Quantity,
			CouponCode: it.CouponCode,
		})
	}

	order, err := h.useCase.Checkout(ctx, userID, items)
	if err != nil {
		span.RecordError(err)
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(attribute.String("order_id", order.ID))
	c.JSON(http.StatusCreated, order)
}

// GetOrder busca um pedido com seus itens
func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.useCase.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, order)
}

// ListOrders lista os pedidos do usuário autenticado
func (h *OrderHandler) ListOrders(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
		return
	}

	orders, err := h.useCase.ListOrders(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// AddItem adiciona um item a um pedido pendente
func (h *OrderHandler) AddItem(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "add_order_item")
	defer span.End()

	var req CheckoutItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	orderID := c.Param("id")
	span.SetAttributes(
		attribute.String("order_id", orderID),
		attribute.String("product_id", req.ProductID),
		attribute.Int("quantity", req.Quantity),
	)

	item, err := h.useCase.AddItem(ctx, orderID, CheckoutItemInput{
		ProductID:  req.ProductID,
		Quantity:   req.Quantity,
		CouponCode: req.CouponCode,
	})
	if err != nil {
		span.RecordError(err)
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, item)
}

// UpdateItem altera a quantidade de um item de um pedido pendente
func (h *OrderHandler) UpdateItem(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "update_order_item")
	defer span.End()

	var req UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	orderID := c.Param("id")
	itemID := c.Param("itemID")
	span.SetAttributes(
		attribute.String("order_id", orderID),
		attribute.String("item_id", itemID),
		attribute.Int("quantity", req.Quantity),
	)

	item, err := h.useCase.UpdateItemQuantity(ctx, orderID, itemID, req.Quantity)
	if err != nil {
		span.RecordError(err)
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, item)
}

// RemoveItem remove um item de um pedido pendente
func (h *OrderHandler) RemoveItem(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "remove_order_item")
	defer span.End()

	orderID := c.Param("id")
	itemID := c.Param("itemID")
	span.SetAttributes(
		attribute.String("order_id", orderID),
		attribute.String("item_id", itemID),
	)

	if err := h.useCase.RemoveItem(ctx, orderID, itemID); err != nil {
		span.RecordError(err)
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": "success"})
}

// CancelOrder cancela um pedido pendente
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "cancel_order")
	defer span.End()

	orderID := c.Param("id")
	span.SetAttributes(attribute.String("order_id", orderID))

	if err := h.useCase.CancelOrder(ctx, orderID); err != nil {
		span.RecordError(err)
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": "success"})
}

// CreateCoupon cria um cupom de desconto (somente admin)
func (h *OrderHandler) CreateCoupon(c *gin.Context) {
	var req CreateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	coupon, err := h.useCase.CreateCoupon(c.Request.Context(), req.Code, req.Discount, req.ValidFrom, req.ValidTo, req.Active, req.ProductID)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, coupon)
}

// ListCoupons lista os cupons ativos
func (h *OrderHandler) ListCoupons(c *gin.Context) {
	coupons, err := h.useCase.ListActiveCoupons(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"coupons": coupons})
}
