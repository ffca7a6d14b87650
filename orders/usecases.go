package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/metric"

	"github.com/lojinha/ecommerce-backend/catalog"
	"github.com/lojinha/ecommerce-backend/postgres"
)

// InventoryLedger abstrai o razão de estoque do catálogo
type InventoryLedger interface {
	GetProduct(ctx context.Context, productID string) (*catalog.Product, error)
	Reserve(ctx context.Context, tx postgres.Tx, productID string, quantity int) (int, error)
	Restore(ctx context.Context, tx postgres.Tx, productID string, quantity int, changeType string) (int, error)
}

// CheckoutItemInput representa um item da requisição de checkout
type CheckoutItemInput struct {
	ProductID  string
	Quantity   int
	CouponCode string
}

// OrderUseCase contém a lógica de negócio dos pedidos
type OrderUseCase struct {
	repository      Repository
	ledger          InventoryLedger
	checkoutCounter metric.Int64Counter
}

// NewOrderUseCase cria uma nova instância de OrderUseCase
func NewOrderUseCase(
	repository Repository,
	ledger InventoryLedger,
	checkoutCounter metric.Int64Counter,
) *OrderUseCase {
	return &OrderUseCase{
		repository:      repository,
		ledger:          ledger,
		checkoutCounter: checkoutCounter,
	}
}

// Checkout cria um pedido pendente com seus itens em uma única transação.
// Qualquer falha em qualquer item desfaz o pedido inteiro: nenhum pedido
// parcial, nenhuma dedução parcial de estoque.
func (uc *OrderUseCase) Checkout(ctx context.Context, userID string, items []CheckoutItemInput) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	order := NewOrder(uuid.New().String(), userID)
	if err := uc.repository.CreateOrder(ctx, tx, order); err != nil {
		return nil, err
	}

	log.Printf("➡️ [CHECKOUT] OrderID: %s | UserID: %s | Items: %d", order.ID, userID, len(items))

	for _, input := range items {
		if _, err := uc.addItemTx(ctx, tx, order.ID, input); err != nil {
			log.Printf("❌ [CHECKOUT] OrderID=%s rolled back: %v", order.ID, err)
			return nil, err
		}
	}

	total, err := uc.repository.RecomputeOrderTotal(ctx, tx, order.ID)
	if err != nil {
		return nil, err
	}
	order.TotalAmount = total

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit checkout: %w", err)
	}

	if uc.checkoutCounter != nil {
		uc.checkoutCounter.Add(ctx, 1)
	}
	log.Printf("✅ [CHECKOUT] OrderID=%s Total=%s", order.ID, order.TotalAmount.StringFixed(2))

	return uc.repository.GetOrder(ctx, order.ID)
}

// addItemTx aplica a regra de adição de item dentro da transação corrente.
// Se já existe item para o par (pedido, produto), soma as quantidades e
// reserva apenas o delta; caso contrário cria o item.
func (uc *OrderUseCase) addItemTx(ctx context.Context, tx postgres.Tx, orderID string, input CheckoutItemInput) (*OrderItem, error) {
	if input.Quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}

	product, err := uc.ledger.GetProduct(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}

	existing, err := uc.repository.GetItemForProduct(ctx, tx, orderID, input.ProductID)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	if existing != nil {
		// Merge: reserva apenas a quantidade adicional; o cupom do item
		// existente é mantido e revalidado no recálculo do preço.
		var coupon *Coupon
		if existing.CouponID != nil {
			coupon, err = uc.repository.GetCouponByID(ctx, *existing.CouponID)
			if err != nil {
				return nil, err
			}
		}

		newQuantity := existing.Quantity + input.Quantity
		totalPrice, err := PriceLine(product, newQuantity, coupon, now)
		if err != nil {
			return nil, err
		}

		if _, err := uc.ledger.Reserve(ctx, tx, product.ID, input.Quantity); err != nil {
			return nil, err
		}

		if err := uc.repository.UpdateItem(ctx, tx, existing.ID, newQuantity, totalPrice); err != nil {
			return nil, err
		}
		existing.Quantity = newQuantity
		existing.TotalPrice = totalPrice
		return existing, nil
	}

	var coupon *Coupon
	var couponID *string
	if input.CouponCode != "" {
		coupon, err = uc.repository.GetCouponByCode(ctx, input.CouponCode)
		if err != nil {
			return nil, err
		}
		couponID = &coupon.ID
	}

	// O cupom é validado no cálculo do preço, antes de reservar estoque
	totalPrice, err := PriceLine(product, input.Quantity, coupon, now)
	if err != nil {
		return nil, err
	}

	if _, err := uc.ledger.Reserve(ctx, tx, product.ID, input.Quantity); err != nil {
		return nil, err
	}

	item := NewOrderItem(uuid.New().String(), orderID, product.ID, input.Quantity, couponID, totalPrice)
	if err := uc.repository.CreateItem(ctx, tx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// AddItem adiciona (ou mescla) um item a um pedido pendente
func (uc *OrderUseCase) AddItem(ctx context.Context, orderID string, input CheckoutItemInput) (*OrderItem, error) {
	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	order, err := uc.repository.GetOrderForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if err := order.EnsureModifiable(); err != nil {
		return nil, err
	}

	item, err := uc.addItemTx(ctx, tx, orderID, input)
	if err != nil {
		return nil, err
	}

	if _, err := uc.repository.RecomputeOrderTotal(ctx, tx, orderID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit item addition: %w", err)
	}

	log.Printf("✅ [ADD ITEM] OrderID=%s ProductID=%s Qty=%d", orderID, input.ProductID, input.Quantity)
	return item, nil
}

// UpdateItemQuantity altera a quantidade de um item de um pedido pendente.
// Delta positivo reserva estoque adicional; delta negativo devolve a diferença.
func (uc *OrderUseCase) UpdateItemQuantity(ctx context.Context, orderID, itemID string, newQuantity int) (*OrderItem, error) {
	if newQuantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	order, err := uc.repository.GetOrderForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if err := order.EnsureModifiable(); err != nil {
		return nil, err
	}

	item, err := uc.repository.GetItem(ctx, tx, orderID, itemID)
	if err != nil {
		return nil, err
	}

	product, err := uc.ledger.GetProduct(ctx, item.ProductID)
	if err != nil {
		return nil, err
	}

	var coupon *Coupon
	if item.CouponID != nil {
		coupon, err = uc.repository.GetCouponByID(ctx, *item.CouponID)
		if err != nil {
			return nil, err
		}
	}

	totalPrice, err := PriceLine(product, newQuantity, coupon, time.Now())
	if err != nil {
		return nil, err
	}

	delta := newQuantity - item.Quantity
	if delta > 0 {
		if _, err := uc.ledger.Reserve(ctx, tx, item.ProductID, delta); err != nil {
			return nil, err
		}
	} else if delta < 0 {
		if _, err := uc.ledger.Restore(ctx, tx, item.ProductID, -delta, catalog.ChangeTypeStockAdded); err != nil {
			return nil, err
		}
	}

	if err := uc.repository.UpdateItem(ctx, tx, item.ID, newQuantity, totalPrice); err != nil {
		return nil, err
	}

	if _, err := uc.repository.RecomputeOrderTotal(ctx, tx, orderID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit item update: %w", err)
	}

	log.Printf("✅ [UPDATE ITEM] OrderID=%s ItemID=%s Qty=%d (delta %+d)", orderID, itemID, newQuantity, delta)
	item.Quantity = newQuantity
	item.TotalPrice = totalPrice
	return item, nil
}

// RemoveItem remove um item de um pedido pendente, devolvendo o estoque
func (uc *OrderUseCase) RemoveItem(ctx context.Context, orderID, itemID string) error {
	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	order, err := uc.repository.GetOrderForUpdate(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if err := order.EnsureModifiable(); err != nil {
		return err
	}

	item, err := uc.repository.GetItem(ctx, tx, orderID, itemID)
	if err != nil {
		return err
	}

	if _, err := uc.ledger.Restore(ctx, tx, item.ProductID, item.Quantity, catalog.ChangeTypeStockAdded); err != nil {
		return err
	}

	if err := uc.repository.DeleteItem(ctx, tx, item.ID); err != nil {
		return err
	}

	if _, err := uc.repository.RecomputeOrderTotal(ctx, tx, orderID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit item removal: %w", err)
	}

	log.Printf("✅ [REMOVE ITEM] OrderID=%s ItemID=%s Qty=%d", orderID, itemID, item.Quantity)
	return nil
}

// CancelOrder cancela um pedido pendente, devolvendo o estoque de todos
// os itens e zerando o total
func (uc *OrderUseCase) CancelOrder(ctx context.Context, orderID string) error {
	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	order, err := uc.repository.GetOrderForUpdate(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if err := order.Cancel(); err != nil {
		return err
	}

	items, err := uc.repository.ListItems(ctx, tx, orderID)
	if err != nil {
		return err
	}
	for _, item := range items {
		if _, err := uc.ledger.Restore(ctx, tx, item.ProductID, item.Quantity, catalog.ChangeTypeStockAdded); err != nil {
			return err
		}
	}

	if err := uc.repository.UpdateOrderStatus(ctx, tx, orderID, OrderStatusCanceled); err != nil {
		return err
	}
	if err := uc.repository.SetOrderTotal(ctx, tx, orderID, decimal.Zero); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cancellation: %w", err)
	}

	log.Printf("↩️ [CANCEL ORDER] OrderID=%s restored %d item(s)", orderID, len(items))
	return nil
}

// CompleteOrderTx marca o pedido como completado dentro da transação do
// chamador (liquidação de pagamento)
func (uc *OrderUseCase) CompleteOrderTx(ctx context.Context, tx postgres.Tx, orderID string) error {
	order, err := uc.repository.GetOrderForUpdate(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if err := order.Complete(); err != nil {
		return err
	}

	if err := uc.repository.UpdateOrderStatus(ctx, tx, orderID, OrderStatusCompleted); err != nil {
		return err
	}

	log.Printf("✅ [COMPLETE ORDER] OrderID=%s", orderID)
	return nil
}

// RefundOrderTx marca o pedido como estornado e devolve o estoque de cada
// item exatamente uma vez, dentro da transação do chamador
func (uc *OrderUseCase) RefundOrderTx(ctx context.Context, tx postgres.Tx, orderID string) error {
	order, err := uc.repository.GetOrderForUpdate(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if err := order.Refund(); err != nil {
		return err
	}

	items, err := uc.repository.ListItems(ctx, tx, orderID)
	if err != nil {
		return err
	}
	for _, item := range items {
		if _, err := uc.ledger.Restore(ctx, tx, item.ProductID, item.Quantity, catalog.ChangeTypeRefund); err != nil {
			return err
		}
	}

	if err := uc.repository.UpdateOrderStatus(ctx, tx, orderID, OrderStatusRefunded); err != nil {
		return err
	}

	log.Printf("↩️ [REFUND ORDER] OrderID=%s restored %d item(s)", orderID, len(items))
	return nil
}

// GetOrder busca um pedido com seus itens
func (uc *OrderUseCase) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	return uc.repository.GetOrder(ctx, orderID)
}

// ListOrders lista os pedidos de um usuário
func (uc *OrderUseCase) ListOrders(ctx context.Context, userID string) ([]Order, error) {
	return uc.repository.ListOrdersByUser(ctx, userID)
}

// CreateCoupon cria um cupom de desconto (somente admin)
func (uc *OrderUseCase) CreateCoupon(ctx context.Context, code string, discount decimal.Decimal, validFrom, validTo time.Time, active bool, productID *string) (*Coupon, error) {
	if discount.IsNegative() || discount.GreaterThan(oneHundred) {
		return nil, fmt.Errorf("discount must be between 0 and 100")
	}
	if !validTo.After(validFrom) {
		return nil, fmt.Errorf("valid_to must be after valid_from")
	}

	coupon := &Coupon{
		ID:        uuid.New().String(),
		Code:      code,
		Discount:  discount,
		ValidFrom: validFrom,
		ValidTo:   validTo,
		Active:    active,
		ProductID: productID,
	}
	if err := uc.repository.CreateCoupon(ctx, coupon); err != nil {
		return nil, err
	}

	log.Printf("✅ [CREATE COUPON] Code=%s Discount=%s%%", code, discount.String())
	return coupon, nil
}

// ListActiveCoupons lista os cupons ativos
func (uc *OrderUseCase) ListActiveCoupons(ctx context.Context) ([]Coupon, error) {
	return uc.repository.ListActiveCoupons(ctx)
}
