package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/lojinha/ecommerce-backend/postgres"
)

// Repository define a interface para operações de banco de dados de pedidos
type Repository interface {
	BeginTx(ctx context.Context) (postgres.Tx, error)

	CreateOrder(ctx context.Context, tx postgres.Tx, order *Order) error
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	// GetOrderForUpdate trava a linha do pedido (FOR UPDATE), serializando
	// escritores concorrentes do mesmo pedido.
	GetOrderForUpdate(ctx context.Context, tx postgres.Tx, orderID string) (*Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]Order, error)
	UpdateOrderStatus(ctx context.Context, tx postgres.Tx, orderID string, status string) error
	SetOrderTotal(ctx context.Context, tx postgres.Tx, orderID string, total decimal.Decimal) error
	// RecomputeOrderTotal grava total_amount = SUM(total_price) dos itens
	// dentro da transação corrente e retorna o novo total.
	RecomputeOrderTotal(ctx context.Context, tx postgres.Tx, orderID string) (decimal.Decimal, error)

	CreateItem(ctx context.Context, tx postgres.Tx, item *OrderItem) error
	// GetItemForProduct retorna (nil, nil) quando não há item para o par
	// (pedido, produto).
	GetItemForProduct(ctx context.Context, tx postgres.Tx, orderID, productID string) (*OrderItem, error)
	GetItem(ctx context.Context, tx postgres.Tx, orderID, itemID string) (*OrderItem, error)
	UpdateItem(ctx context.Context, tx postgres.Tx, itemID string, quantity int, totalPrice decimal.Decimal) error
	DeleteItem(ctx context.Context, tx postgres.Tx, itemID string) error
	ListItems(ctx context.Context, tx postgres.Tx, orderID string) ([]OrderItem, error)

	GetCouponByCode(ctx context.Context, code string) (*Coupon, error)
	GetCouponByID(ctx context.Context, couponID string) (*Coupon, error)
	CreateCoupon(ctx context.Context, coupon *Coupon) error
	ListActiveCoupons(ctx context.Context) ([]Coupon, error)
}

// OrderRepository implementa Repository usando PostgreSQL
type OrderRepository struct {
	db *pgxpool.Pool
}

// NewOrderRepository cria uma nova instância de OrderRepository
func NewOrderRepository(db *pgxpool.Pool) Repository {
	return &OrderRepository{db: db}
}

// BeginTx inicia uma nova transação
func (r *OrderRepository) BeginTx(ctx context.Context) (postgres.Tx, error) {
	return postgres.Begin(ctx, r.db)
}

// CreateOrder cria um novo pedido dentro da transação corrente
func (r *OrderRepository) CreateOrder(ctx context.Context, tx postgres.Tx, order *Order) error {
	pgTx := postgres.Unwrap(tx)
	_, err := pgTx.Exec(ctx, `
		INSERT INTO orders (id, user_id, status, total_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, order.ID, order.UserID, order.Status, order.TotalAmount, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// GetOrder busca um pedido com seus itens
func (r *OrderRepository) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, status, total_amount, created_at, updated_at
		FROM orders WHERE id = $1
	`, orderID).Scan(&order.ID, &order.UserID, &order.Status, &order.TotalAmount, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, product_id, quantity, coupon_id, total_price, created_at, updated_at
		FROM order_items WHERE order_id = $1 ORDER BY created_at
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.CouponID, &item.TotalPrice, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderForUpdate obtém o pedido com lock pessimista (FOR UPDATE)
func (r *OrderRepository) GetOrderForUpdate(ctx context.Context, tx postgres.Tx, orderID string) (*Order, error) {
	pgTx := postgres.Unwrap(tx)

	var order Order
	err := pgTx.QueryRow(ctx, `
		SELECT id, user_id, status, total_amount, created_at, updated_at
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`, orderID).Scan(&order.ID, &order.UserID, &order.Status, &order.TotalAmount, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		return nil, fmt.Errorf("failed to get order for update: %w", err)
	}
	return &order, nil
}

// ListOrdersByUser lista os pedidos de um usuário
func (r *OrderRepository) ListOrdersByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, status, total_amount, created_at, updated_at
		FROM orders WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Status, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// UpdateOrderStatus atualiza o status de um pedido
func (r *OrderRepository) UpdateOrderStatus(ctx context.Context, tx postgres.Tx, orderID string, status string) error {
	pgTx := postgres.Unwrap(tx)
	_, err := pgTx.Exec(ctx, `
		UPDATE orders
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, orderID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return nil
}

// SetOrderTotal grava o total do pedido
func (r *OrderRepository) SetOrderTotal(ctx context.Context, tx postgres.Tx, orderID string, total decimal.Decimal) error {
	pgTx := postgres.Unwrap(tx)
	_, err := pgTx.Exec(ctx, `
		UPDATE orders
		SET total_amount = $1, updated_at = NOW()
		WHERE id = $2
	`, total, orderID)
	if err != nil {
		return fmt.Errorf("failed to set order total: %w", err)
	}
	return nil
}

// RecomputeOrderTotal recalcula o total a partir dos itens persistidos
func (r *OrderRepository) RecomputeOrderTotal(ctx context.Context, tx postgres.Tx, orderID string) (decimal.Decimal, error) {
	pgTx := postgres.Unwrap(tx)

	var total decimal.Decimal
	err := pgTx.QueryRow(ctx, `
		UPDATE orders
		SET total_amount = COALESCE((SELECT SUM(total_price) FROM order_items WHERE order_id = $1), 0),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING total_amount
	`, orderID).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to recompute order total: %w", err)
	}
	return total, nil
}

// CreateItem insere um item de pedido
func (r *OrderRepository) CreateItem(ctx context.Context, tx postgres.Tx, item *OrderItem) error {
	pgTx := postgres.Unwrap(tx)
	_, err := pgTx.Exec(ctx, `
		INSERT INTO order_items (id, order_id, product_id, quantity, coupon_id, total_price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, item.ID, item.OrderID, item.ProductID, item.Quantity, item.CouponID, item.TotalPrice, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order item: %w", err)
	}
	return nil
}

// GetItemForProduct busca o item do par (pedido, produto), se existir
func (r *OrderRepository) GetItemForProduct(ctx context.Context, tx postgres.Tx, orderID, productID string) (*OrderItem, error) {
	pgTx := postgres.Unwrap(tx)

	var item OrderItem
	err := pgTx.QueryRow(ctx, `
		SELECT id, order_id, product_id, quantity, coupon_id, total_price, created_at, updated_at
		FROM order_items
		WHERE order_id = $1 AND product_id = $2
	`, orderID, productID).Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.CouponID, &item.TotalPrice, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get order item: %w", err)
	}
	return &item, nil
}

// GetItem busca um item pelo ID dentro de um pedido
func (r *OrderRepository) GetItem(ctx context.Context, tx postgres.Tx, orderID, itemID string) (*OrderItem, error) {
	pgTx := postgres.Unwrap(tx)

	var item OrderItem
	err := pgTx.QueryRow(ctx, `
		SELECT id, order_id, product_id, quantity, coupon_id, total_price, created_at, updated_at
		FROM order_items
		WHERE id = $1 AND order_id = $2
	`, itemID, orderID).Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.CouponID, &item.TotalPrice, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
		}
		return nil, fmt.Errorf("failed to get order item: %w", err)
	}
	return &item, nil
}

// UpdateItem atualiza quantidade e total de um item
func (r *OrderRepository) UpdateItem(ctx context.Context, tx postgres.Tx, itemID string, quantity int, totalPrice decimal.Decimal) error {
	pgTx := postgres.Unwrap(tx)
	_, err := pgTx.Exec(ctx, `
		UPDATE order_items
		SET quantity = $1, total_price = $2, updated_at = NOW()
		WHERE id = $3
	`, quantity, totalPrice, itemID)
	if err != nil {
		return fmt.Errorf("failed to update order item: %w", err)
	}
	return nil
}

// DeleteItem remove um item do pedido
func (r *OrderRepository) DeleteItem(ctx context.Context, tx postgres.Tx, itemID string) error {
	pgTx := postgres.Unwrap(tx)
	_, err := pgTx.Exec(ctx, `DELETE FROM order_items WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("failed to delete order item: %w", err)
	}
	return nil
}

// ListItems lista os itens de um pedido dentro da transação corrente
func (r *OrderRepository) ListItems(ctx context.Context, tx postgres.Tx, orderID string) ([]OrderItem, error) {
	pgTx := postgres.Unwrap(tx)

	rows, err := pgTx.Query(ctx, `
		SELECT id, order_id, product_id, quantity, coupon_id, total_price, created_at, updated_at
		FROM order_items WHERE order_id = $1 ORDER BY created_at
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list order items: %w", err)
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.CouponID, &item.TotalPrice, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetCouponByCode busca um cupom pelo código
func (r *OrderRepository) GetCouponByCode(ctx context.Context, code string) (*Coupon, error) {
	return r.getCoupon(ctx, `
		SELECT id, code, discount, valid_from, valid_to, active, product_id
		FROM coupons WHERE code = $1
	`, code)
}

// GetCouponByID busca um cupom pelo ID
func (r *OrderRepository) GetCouponByID(ctx context.Context, couponID string) (*Coupon, error) {
	return r.getCoupon(ctx, `
		SELECT id, code, discount, valid_from, valid_to, active, product_id
		FROM coupons WHERE id = $1
	`, couponID)
}

func (r *OrderRepository) getCoupon(ctx context.Context, query, arg string) (*Coupon, error) {
	var coupon Coupon
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&coupon.ID,
		&coupon.Code,
		&coupon.Discount,
		&coupon.ValidFrom,
		&coupon.ValidTo,
		&coupon.Active,
		&coupon.ProductID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrCouponNotFound, arg)
		}
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}
	return &coupon, nil
}

// CreateCoupon insere um novo cupom
func (r *OrderRepository) CreateCoupon(ctx context.Context, coupon *Coupon) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO coupons (id, code, discount, valid_from, valid_to, active, product_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, coupon.ID, coupon.Code, coupon.Discount, coupon.ValidFrom, coupon.ValidTo, coupon.Active, coupon.ProductID)
	if err != nil {
		return fmt.Errorf("failed to create coupon: %w", err)
	}
	return nil
}

// ListActiveCoupons lista os cupons com a flag active
func (r *OrderRepository) ListActiveCoupons(ctx context.Context) ([]Coupon, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, code, discount, valid_from, valid_to, active, product_id
		FROM coupons WHERE active = TRUE ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list coupons: %w", err)
	}
	defer rows.Close()

	var coupons []Coupon
	for rows.Next() {
		var c Coupon
		if err := rows.Scan(&c.ID, &c.Code, &c.Discount, &c.ValidFrom, &c.ValidTo, &c.Active, &c.ProductID); err != nil {
			return nil, fmt.Errorf("failed to scan coupon: %w", err)
		}
		coupons = append(coupons, c)
	}
	return coupons, rows.Err()
}
