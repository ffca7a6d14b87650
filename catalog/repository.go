package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lojinha/ecommerce-backend/postgres"
)

var (
	// ErrInsufficientStock indica que o decremento condicional não afetou nenhuma linha
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrProductNotFound indica que o produto não existe
	ErrProductNotFound = errors.New("product not found")
)

// Repository define a interface para operações de banco de dados do catálogo
type Repository interface {
	BeginTx(ctx context.Context) (postgres.Tx, error)

	GetProduct(ctx context.Context, productID string) (*Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	CreateProduct(ctx context.Context, product *Product) error

	// ReserveStock decrementa o estoque de forma condicional e atômica,
	// registrando a movimentação na mesma transação. Retorna o novo nível.
	ReserveStock(ctx context.Context, tx postgres.Tx, productID string, quantity int) (int, error)

	// RestoreStock incrementa o estoque incondicionalmente,
	// registrando a movimentação na mesma transação. Retorna o novo nível.
	RestoreStock(ctx context.Context, tx postgres.Tx, productID string, quantity int, changeType string) (int, error)

	ListStockLogs(ctx context.Context, productID string) ([]StockLog, error)
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, category *Category) error
}

// PostgresRepository implementa Repository usando PostgreSQL
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewRepository cria uma nova instância de PostgresRepository
func NewRepository(db *pgxpool.Pool) Repository {
	return &PostgresRepository{db: db}
}

// BeginTx inicia uma nova transação
func (r *PostgresRepository) BeginTx(ctx context.Context) (postgres.Tx, error) {
	return postgres.Begin(ctx, r.db)
}

// GetProduct busca um produto pelo ID
func (r *PostgresRepository) GetProduct(ctx context.Context, productID string) (*Product, error) {
	var product Product
	err := r.db.QueryRow(ctx, `
		SELECT id, name, description, category_id, price, stock, created_at, updated_at
		FROM products WHERE id = $1
	`, productID).Scan(
		&product.ID,
		&product.Name,
		&product.Description,
		&product.CategoryID,
		&product.Price,
		&product.Stock,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &product, nil
}

// ListProducts lista todos os produtos do catálogo
func (r *PostgresRepository) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, description, category_id, price, stock, created_at, updated_at
		FROM products ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CategoryID, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// CreateProduct insere o produto e o registro de estoque inicial na mesma transação
func (r *PostgresRepository) CreateProduct(ctx context.Context, product *Product) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO products (id, name, description, category_id, price, stock, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, product.ID, product.Name, product.Description, product.CategoryID, product.Price, product.Stock, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO stock_logs (id, product_id, change_type, quantity_changed, new_stock_level)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New().String(), product.ID, ChangeTypeInitialStock, product.Stock, product.Stock)
	if err != nil {
		return fmt.Errorf("failed to insert initial stock log: %w", err)
	}

	return tx.Commit(ctx)
}

// ReserveStock executa o decremento condicional em uma única instrução.
// Zero linhas afetadas significa estoque insuficiente; nada é alterado.
func (r *PostgresRepository) ReserveStock(ctx context.Context, tx postgres.Tx, productID string, quantity int) (int, error) {
	pgTx := postgres.Unwrap(tx)

	var newStock int
	err := pgTx.QueryRow(ctx, `
		UPDATE products
		SET stock = stock - $1,
		    updated_at = NOW()
		WHERE id = $2 AND stock >= $1
		RETURNING stock
	`, quantity, productID).Scan(&newStock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w for product %s", ErrInsufficientStock, productID)
		}
		return 0, fmt.Errorf("failed to reserve stock: %w", err)
	}

	if err := r.insertStockLog(ctx, pgTx, productID, ChangeTypeStockDeducted, -quantity, newStock); err != nil {
		return 0, err
	}
	return newStock, nil
}

// RestoreStock executa o incremento incondicional do estoque
func (r *PostgresRepository) RestoreStock(ctx context.Context, tx postgres.Tx, productID string, quantity int, changeType string) (int, error) {
	pgTx := postgres.Unwrap(tx)

	var newStock int
	err := pgTx.QueryRow(ctx, `
		UPDATE products
		SET stock = stock + $1,
		    updated_at = NOW()
		WHERE id = $2
		RETURNING stock
	`, quantity, productID).Scan(&newStock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
		}
		return 0, fmt.Errorf("failed to restore stock: %w", err)
	}

	if err := r.insertStockLog(ctx, pgTx, productID, changeType, quantity, newStock); err != nil {
		return 0, err
	}
	return newStock, nil
}

func (r *PostgresRepository) insertStockLog(ctx context.Context, pgTx pgx.Tx, productID, changeType string, delta, newLevel int) error {
	_, err := pgTx.Exec(ctx, `
		INSERT INTO stock_logs (id, product_id, change_type, quantity_changed, new_stock_level)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New().String(), productID, changeType, delta, newLevel)
	if err != nil {
		return fmt.Errorf("failed to insert stock log: %w", err)
	}
	return nil
}

// ListStockLogs lista as movimentações de estoque de um produto
func (r *PostgresRepository) ListStockLogs(ctx context.Context, productID string) ([]StockLog, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, product_id, change_type, quantity_changed, new_stock_level, created_at
		FROM stock_logs
		WHERE product_id = $1
		ORDER BY created_at DESC
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock logs: %w", err)
	}
	defer rows.Close()

	var logs []StockLog
	for rows.Next() {
		var l StockLog
		if err := rows.Scan(&l.ID, &l.ProductID, &l.ChangeType, &l.QuantityChanged, &l.NewStockLevel, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stock log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// ListCategories lista todas as categorias
func (r *PostgresRepository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// CreateCategory insere uma nova categoria
func (r *PostgresRepository) CreateCategory(ctx context.Context, category *Category) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO categories (id, name) VALUES ($1, LOWER($2))
	`, category.ID, category.Name)
	if err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}
