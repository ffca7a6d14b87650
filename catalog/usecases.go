package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/lojinha/ecommerce-backend/postgres"
)

// InventoryUseCase contém a lógica de negócio do catálogo e do razão de estoque
type InventoryUseCase struct {
	repository Repository
}

// NewInventoryUseCase cria uma nova instância de InventoryUseCase
func NewInventoryUseCase(repository Repository) *InventoryUseCase {
	return &InventoryUseCase{
		repository: repository,
	}
}

// Reserve decrementa o estoque do produto de forma condicional e atômica.
// A checagem e a escrita acontecem em uma única instrução no banco; o estoque
// nunca é mantido em memória entre a leitura e a gravação.
func (uc *InventoryUseCase) Reserve(ctx context.Context, tx postgres.Tx, productID string, quantity int) (int, error) {
	newStock, err := uc.repository.ReserveStock(ctx, tx, productID, quantity)
	if err != nil {
		log.Printf("❌ [RESERVE] ProductID=%s Qty=%d failed: %v", productID, quantity, err)
		return 0, err
	}

	log.Printf("✅ [RESERVE] ProductID=%s Qty=%d NewStock=%d", productID, quantity, newStock)
	return newStock, nil
}

// Restore incrementa o estoque incondicionalmente (cancelamento/estorno).
// A idempotência por evento é responsabilidade do chamador.
func (uc *InventoryUseCase) Restore(ctx context.Context, tx postgres.Tx, productID string, quantity int, changeType string) (int, error) {
	newStock, err := uc.repository.RestoreStock(ctx, tx, productID, quantity, changeType)
	if err != nil {
		log.Printf("❌ [RESTORE] ProductID=%s Qty=%d failed: %v", productID, quantity, err)
		return 0, err
	}

	log.Printf("↩️ [RESTORE] ProductID=%s Qty=%d NewStock=%d Type=%s", productID, quantity, newStock, changeType)
	return newStock, nil
}

// AddStock é a operação administrativa de reposição de estoque
func (uc *InventoryUseCase) AddStock(ctx context.Context, productID string, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("quantity must be positive")
	}

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	newStock, err := uc.repository.RestoreStock(ctx, tx, productID, quantity, ChangeTypeStockAdded)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit stock addition: %w", err)
	}

	log.Printf("✅ [ADD STOCK] ProductID=%s Qty=%d NewStock=%d", productID, quantity, newStock)
	return newStock, nil
}

// CreateProduct cria um produto com seu estoque inicial
func (uc *InventoryUseCase) CreateProduct(ctx context.Context, name, description, categoryID string, price decimal.Decimal, stock int) (*Product, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("product name is required")
	}
	if price.IsNegative() {
		return nil, fmt.Errorf("price must not be negative")
	}
	if stock < 0 {
		return nil, fmt.Errorf("initial stock must not be negative")
	}

	product := NewProduct(uuid.New().String(), name, description, categoryID, price, stock)
	if err := uc.repository.CreateProduct(ctx, product); err != nil {
		return nil, err
	}

	log.Printf("✅ [CREATE PRODUCT] ID=%s Name=%s Stock=%d", product.ID, product.Name, product.Stock)
	return product, nil
}

// GetProduct busca um produto pelo ID
func (uc *InventoryUseCase) GetProduct(ctx context.Context, productID string) (*Product, error) {
	return uc.repository.GetProduct(ctx, productID)
}

// ListProducts lista os produtos do catálogo
func (uc *InventoryUseCase) ListProducts(ctx context.Context) ([]Product, error) {
	return uc.repository.ListProducts(ctx)
}

// ListStockLogs lista o histórico de movimentações de um produto
func (uc *InventoryUseCase) ListStockLogs(ctx context.Context, productID string) ([]StockLog, error) {
	if _, err := uc.repository.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return uc.repository.ListStockLogs(ctx, productID)
}

// ListCategories lista as categorias de produtos
func (uc *InventoryUseCase) ListCategories(ctx context.Context) ([]Category, error) {
	return uc.repository.ListCategories(ctx)
}

// CreateCategory cria uma nova categoria
func (uc *InventoryUseCase) CreateCategory(ctx context.Context, name string) (*Category, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("category name is required")
	}

	category := &Category{ID: uuid.New().String(), Name: strings.ToLower(name)}
	if err := uc.repository.CreateCategory(ctx, category); err != nil {
		return nil, err
	}
	return category, nil
}
