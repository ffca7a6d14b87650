package catalog

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/lojinha/ecommerce-backend/postgres"
)

// fakeTx é uma transação no-op para os testes do razão de estoque
type fakeTx struct{}

func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }

// fakeRepository simula o comportamento do decremento condicional do banco:
// checagem e escrita acontecem sob o mesmo lock, como em uma única instrução
type fakeRepository struct {
	mu     sync.Mutex
	stocks map[string]int
	logs   []StockLog
}

func newFakeRepository(stocks map[string]int) *fakeRepository {
	return &fakeRepository{stocks: stocks}
}

func (f *fakeRepository) BeginTx(ctx context.Context) (postgres.Tx, error) {
	return fakeTx{}, nil
}

func (f *fakeRepository) GetProduct(ctx context.Context, productID string) (*Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stock, ok := f.stocks[productID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	return &Product{ID: productID, Stock: stock, Price: decimal.Zero}, nil
}

func (f *fakeRepository) ListProducts(ctx context.Context) ([]Product, error) {
	return nil, nil
}

func (f *fakeRepository) CreateProduct(ctx context.Context, product *Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stocks[product.ID] = product.Stock
	f.logs = append(f.logs, StockLog{
		ProductID:       product.ID,
		ChangeType:      ChangeTypeInitialStock,
		QuantityChanged: product.Stock,
		NewStockLevel:   product.Stock,
	})
	return nil
}

func (f *fakeRepository) ReserveStock(ctx context.Context, tx postgres.Tx, productID string, quantity int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stock, ok := f.stocks[productID]
	if !ok || stock < quantity {
		return 0, fmt.Errorf("%w for product %s", ErrInsufficientStock, productID)
	}
	newStock := stock - quantity
	f.stocks[productID] = newStock
	f.logs = append(f.logs, StockLog{
		ProductID:       productID,
		ChangeType:      ChangeTypeStockDeducted,
		QuantityChanged: -quantity,
		NewStockLevel:   newStock,
	})
	return newStock, nil
}

func (f *fakeRepository) RestoreStock(ctx context.Context, tx postgres.Tx, productID string, quantity int, changeType string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	newStock := f.stocks[productID] + quantity
	f.stocks[productID] = newStock
	f.logs = append(f.logs, StockLog{
		ProductID:       productID,
		ChangeType:      changeType,
		QuantityChanged: quantity,
		NewStockLevel:   newStock,
	})
	return newStock, nil
}

func (f *fakeRepository) ListStockLogs(ctx context.Context, productID string) ([]StockLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []StockLog
	for _, l := range f.logs {
		if l.ProductID == productID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeRepository) ListCategories(ctx context.Context) ([]Category, error) {
	return nil, nil
}

func (f *fakeRepository) CreateCategory(ctx context.Context, category *Category) error {
	return nil
}

func TestReserveDeductsAndLogs(t *testing.T) {
	// Arrange
	repo := newFakeRepository(map[string]int{"prod-1": 10})
	useCase := NewInventoryUseCase(repo)

	// Act
	newStock, err := useCase.Reserve(context.Background(), fakeTx{}, "prod-1", 3)

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, 7, newStock)

	logs, _ := repo.ListStockLogs(context.Background(), "prod-1")
	assert.Len(t, logs, 1)
	assert.Equal(t, ChangeTypeStockDeducted, logs[0].ChangeType)
	assert.Equal(t, -3, logs[0].QuantityChanged)
	assert.Equal(t, 7, logs[0].NewStockLevel)
}

func TestReserveInsufficientStock(t *testing.T) {
	// Arrange
	repo := newFakeRepository(map[string]int{"prod-1": 2})
	useCase := NewInventoryUseCase(repo)

	// Act
	_, err := useCase.Reserve(context.Background(), fakeTx{}, "prod-1", 5)

	// Assert: estoque intacto, nenhuma movimentação registrada
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 2, repo.stocks["prod-1"])

	logs, _ := repo.ListStockLogs(context.Background(), "prod-1")
	assert.Empty(t, logs)
}

func TestReserveExactStock(t *testing.T) {
	// Arrange: quantity == stock deve passar
	repo := newFakeRepository(map[string]int{"prod-1": 5})
	useCase := NewInventoryUseCase(repo)

	// Act
	newStock, err := useCase.Reserve(context.Background(), fakeTx{}, "prod-1", 5)

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, 0, newStock)
}

func TestConcurrentReservesNeverOversell(t *testing.T) {
	// Arrange: 5 unidades, 10 compradores de 1 unidade cada mais 10 de 2
	repo := newFakeRepository(map[string]int{"prod-1": 5})
	useCase := NewInventoryUseCase(repo)

	var wg sync.WaitGroup
	var mu sync.Mutex
	reserved := 0

	reserve := func(qty int) {
		defer wg.Done()
		if _, err := useCase.Reserve(context.Background(), fakeTx{}, "prod-1", qty); err == nil {
			mu.Lock()
			reserved += qty
			mu.Unlock()
		}
	}

	// Act
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go reserve(1)
		go reserve(2)
	}
	wg.Wait()

	// Assert: a soma do que foi reservado nunca excede o estoque inicial
	assert.LessOrEqual(t, reserved, 5)
	assert.Equal(t, 5-reserved, repo.stocks["prod-1"])

	// Cada reserva bem sucedida tem exatamente um registro no razão
	logs, _ := repo.ListStockLogs(context.Background(), "prod-1")
	deducted := 0
	for _, l := range logs {
		assert.Equal(t, ChangeTypeStockDeducted, l.ChangeType)
		deducted += -l.QuantityChanged
	}
	assert.Equal(t, reserved, deducted)
}

func TestRestoreIncrementsAndLogs(t *testing.T) {
	// Arrange
	repo := newFakeRepository(map[string]int{"prod-1": 3})
	useCase := NewInventoryUseCase(repo)

	// Act
	newStock, err := useCase.Restore(context.Background(), fakeTx{}, "prod-1", 4, ChangeTypeRefund)

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, 7, newStock)

	logs, _ := repo.ListStockLogs(context.Background(), "prod-1")
	assert.Len(t, logs, 1)
	assert.Equal(t, ChangeTypeRefund, logs[0].ChangeType)
	assert.Equal(t, 4, logs[0].QuantityChanged)
}

func TestAddStockRejectsNonPositiveQuantity(t *testing.T) {
	repo := newFakeRepository(map[string]int{"prod-1": 3})
	useCase := NewInventoryUseCase(repo)

	_, err := useCase.AddStock(context.Background(), "prod-1", 0)
	assert.Error(t, err)

	_, err = useCase.AddStock(context.Background(), "prod-1", -2)
	assert.Error(t, err)

	assert.Equal(t, 3, repo.stocks["prod-1"])
}

func TestCreateProductWritesInitialStockLog(t *testing.T) {
	// Arrange
	repo := newFakeRepository(map[string]int{})
	useCase := NewInventoryUseCase(repo)

	// Act
	product, err := useCase.CreateProduct(context.Background(), "Laptop", "A fast laptop", "cat-1", decimal.RequireFromString("999.99"), 10)

	// Assert
	assert.NoError(t, err)
	assert.NotEmpty(t, product.ID)

	logs, _ := repo.ListStockLogs(context.Background(), product.ID)
	assert.Len(t, logs, 1)
	assert.Equal(t, ChangeTypeInitialStock, logs[0].ChangeType)
	assert.Equal(t, 10, logs[0].QuantityChanged)
	assert.Equal(t, 10, logs[0].NewStockLevel)
}

func TestCreateProductValidation(t *testing.T) {
	repo := newFakeRepository(map[string]int{})
	useCase := NewInventoryUseCase(repo)

	_, err := useCase.CreateProduct(context.Background(), "  ", "", "cat-1", decimal.NewFromInt(10), 1)
	assert.Error(t, err)

	_, err = useCase.CreateProduct(context.Background(), "Laptop", "", "cat-1", decimal.NewFromInt(-1), 1)
	assert.Error(t, err)

	_, err = useCase.CreateProduct(context.Background(), "Laptop", "", "cat-1", decimal.NewFromInt(10), -1)
	assert.Error(t, err)
}
