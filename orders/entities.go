package orders

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrOrderAlreadyFinal indica uma transição a partir de um estado terminal
	ErrOrderAlreadyFinal = errors.New("order already finalized")
	// ErrOrderNotModifiable indica mutação de itens em um pedido não pendente
	ErrOrderNotModifiable = errors.New("order is not modifiable")
	// ErrEmptyCart indica um checkout sem itens
	ErrEmptyCart = errors.New("cart is empty")
	// ErrCouponNotApplicable indica cupom inválido para o produto ou fora da validade
	ErrCouponNotApplicable = errors.New("coupon not applicable")
	// ErrOrderNotFound indica que o pedido não existe
	ErrOrderNotFound = errors.New("order not found")
	// ErrItemNotFound indica que o item não existe no pedido
	ErrItemNotFound = errors.New("order item not found")
	// ErrCouponNotFound indica que o cupom não existe
	ErrCouponNotFound = errors.New("coupon not found")
)

// OrderStatus representa os possíveis status de um pedido.
// completed, canceled e refunded são estados terminais.
const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusCanceled  = "canceled"
	OrderStatusRefunded  = "refunded"
)

// Order representa um pedido no sistema
type Order struct {
	ID          string          `json:"id" db:"id"`
	UserID      string          `json:"user_id" db:"user_id"`
	Status      string          `json:"status" db:"status"`
	TotalAmount decimal.Decimal `json:"total_amount" db:"total_amount"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
	Items       []OrderItem     `json:"items,omitempty" db:"-"`
}

// NewOrder cria uma nova instância de Order
func NewOrder(id, userID string) *Order {
	return &Order{
		ID:          id,
		UserID:      userID,
		Status:      OrderStatusPending,
		TotalAmount: decimal.Zero,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
}

// IsFinal informa se o pedido está em um estado terminal
func (o *Order) IsFinal() bool {
	return o.Status != OrderStatusPending
}

// EnsureModifiable valida que itens do pedido ainda podem ser alterados
func (o *Order) EnsureModifiable() error {
	if o.Status != OrderStatusPending {
		return fmt.Errorf("%w: order %s is %s", ErrOrderNotModifiable, o.ID, o.Status)
	}
	return nil
}

// Complete marca o pedido como completado
func (o *Order) Complete() error {
	if o.Status != OrderStatusPending {
		return fmt.Errorf("%w: order %s is %s", ErrOrderAlreadyFinal, o.ID, o.Status)
	}
	o.Status = OrderStatusCompleted
	return nil
}

// Cancel marca o pedido como cancelado
func (o *Order) Cancel() error {
	if o.Status != OrderStatusPending {
		return fmt.Errorf("%w: order %s is %s", ErrOrderAlreadyFinal, o.ID, o.Status)
	}
	o.Status = OrderStatusCanceled
	return nil
}

// Refund marca o pedido como estornado. Somente pedidos completados
// podem ser estornados.
func (o *Order) Refund() error {
	if o.Status != OrderStatusCompleted {
		return fmt.Errorf("%w: order %s is %s", ErrOrderAlreadyFinal, o.ID, o.Status)
	}
	o.Status = OrderStatusRefunded
	return nil
}

// OrderItem representa um item de pedido. Existe no máximo um item
// por par (pedido, produto); adições repetidas somam quantidade.
type OrderItem struct {
	ID         string          `json:"id" db:"id"`
	OrderID    string          `json:"order_id" db:"order_id"`
	ProductID  string          `json:"product_id" db:"product_id"`
	Quantity   int             `json:"quantity" db:"quantity"`
	CouponID   *string         `json:"coupon_id,omitempty" db:"coupon_id"`
	TotalPrice decimal.Decimal `json:"total_price" db:"total_price"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// NewOrderItem cria uma nova instância de OrderItem
func NewOrderItem(id, orderID, productID string, quantity int, couponID *string, totalPrice decimal.Decimal) *OrderItem {
	return &OrderItem{
		ID:         id,
		OrderID:    orderID,
		ProductID:  productID,
		Quantity:   quantity,
		CouponID:   couponID,
		TotalPrice: totalPrice,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
}

// Coupon representa um cupom de desconto percentual, opcionalmente
// restrito a um único produto (ProductID nulo aplica a qualquer produto).
type Coupon struct {
	ID        string          `json:"id" db:"id"`
	Code      string          `json:"code" db:"code"`
	Discount  decimal.Decimal `json:"discount" db:"discount"`
	ValidFrom time.Time       `json:"valid_from" db:"valid_from"`
	ValidTo   time.Time       `json:"valid_to" db:"valid_to"`
	Active    bool            `json:"active" db:"active"`
	ProductID *string         `json:"product_id,omitempty" db:"product_id"`
}

// AppliesTo valida o cupom para um produto no instante dado. A validade
// é avaliada aqui, no momento do cálculo; cupons expirados não são
// desativados automaticamente.
func (c *Coupon) AppliesTo(productID string, now time.Time) error {
	if !c.Active {
		return fmt.Errorf("%w: coupon %s is inactive", ErrCouponNotApplicable, c.Code)
	}
	if now.Before(c.ValidFrom) || now.After(c.ValidTo) {
		return fmt.Errorf("%w: coupon %s is outside its validity window", ErrCouponNotApplicable, c.Code)
	}
	if c.ProductID != nil && *c.ProductID != productID {
		return fmt.Errorf("%w: coupon %s is restricted to another product", ErrCouponNotApplicable, c.Code)
	}
	return nil
}
