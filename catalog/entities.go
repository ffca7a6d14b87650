package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category representa uma categoria de produtos
type Category struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Product representa um produto do catálogo
type Product struct {
	ID          string          `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	CategoryID  string          `json:"category_id" db:"category_id"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Stock       int             `json:"stock" db:"stock"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// NewProduct cria uma nova instância de Product
func NewProduct(id, name, description, categoryID string, price decimal.Decimal, stock int) *Product {
	return &Product{
		ID:          id,
		Name:        name,
		Description: description,
		CategoryID:  categoryID,
		Price:       price,
		Stock:       stock,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
}

// StockLog é o registro imutável de uma movimentação de estoque.
// Linhas são apenas inseridas, nunca atualizadas ou removidas.
type StockLog struct {
	ID              string    `json:"id" db:"id"`
	ProductID       string    `json:"product_id" db:"product_id"`
	ChangeType      string    `json:"change_type" db:"change_type"`
	QuantityChanged int       `json:"quantity_changed" db:"quantity_changed"`
	NewStockLevel   int       `json:"new_stock_level" db:"new_stock_level"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// ChangeType representa os tipos de movimentação de estoque
const (
	ChangeTypeInitialStock   = "Initial Stock"
	ChangeTypeStockAdded     = "Stock Added"
	ChangeTypeStockDeducted  = "Stock Deducted"
	ChangeTypePaymentSuccess = "Payment Success"
	ChangeTypeRefund         = "Refund"
)
