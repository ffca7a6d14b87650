package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lojinha/ecommerce-backend/postgres"
)

// PaymentRepository define a interface para operações de banco de dados de pagamentos
type PaymentRepository interface {
	BeginTx(ctx context.Context) (postgres.Tx, error)

	CreatePayment(ctx context.Context, payment *Payment) error
	GetPaymentByOrderID(ctx context.Context, orderID string) (*Payment, error)
	// GetPaymentByReferenceForUpdate trava a linha do pagamento (FOR UPDATE)
	// para que eventos concorrentes do provedor sejam serializados.
	GetPaymentByReferenceForUpdate(ctx context.Context, tx postgres.Tx, providerReference string) (*Payment, error)
	UpdatePaymentStatus(ctx context.Context, tx postgres.Tx, paymentID string, status string) error
}

// PostgresPaymentRepository implementa PaymentRepository usando PostgreSQL
type PostgresPaymentRepository struct {
	db *pgxpool.Pool
}

// NewPaymentRepository cria uma nova instância de PostgresPaymentRepository
func NewPaymentRepository(db *pgxpool.Pool) PaymentRepository {
	return &PostgresPaymentRepository{db: db}
}

// BeginTx inicia uma nova transação
func (r *PostgresPaymentRepository) BeginTx(ctx context.Context) (postgres.Tx, error) {
	return postgres.Begin(ctx, r.db)
}

// CreatePayment insere um novo pagamento
func (r *PostgresPaymentRepository) CreatePayment(ctx context.Context, payment *Payment) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO payments (id, order_id, method, provider_reference, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, payment.ID, payment.OrderID, payment.Method, payment.ProviderReference, payment.Amount, payment.Status, payment.CreatedAt, payment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetPaymentByOrderID busca o pagamento de um pedido
func (r *PostgresPaymentRepository) GetPaymentByOrderID(ctx context.Context, orderID string) (*Payment, error) {
	var payment Payment
	err := r.db.QueryRow(ctx, `
		SELECT id, order_id, method, provider_reference, amount, status, created_at, updated_at
		FROM payments WHERE order_id = $1
	`, orderID).Scan(&payment.ID, &payment.OrderID, &payment.Method, &payment.ProviderReference, &payment.Amount, &payment.Status, &payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w for order %s", ErrPaymentNotFound, orderID)
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &payment, nil
}

// GetPaymentByReferenceForUpdate obtém o pagamento com lock pessimista (FOR UPDATE)
func (r *PostgresPaymentRepository) GetPaymentByReferenceForUpdate(ctx context.Context, tx postgres.Tx, providerReference string) (*Payment, error) {
	pgTx := postgres.Unwrap(tx)

	var payment Payment
	err := pgTx.QueryRow(ctx, `
		SELECT id, order_id, method, provider_reference, amount, status, created_at, updated_at
		FROM payments
		WHERE provider_reference = $1
		FOR UPDATE
	`, providerReference).Scan(&payment.ID, &payment.OrderID, &payment.Method, &payment.ProviderReference, &payment.Amount, &payment.Status, &payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: reference %s", ErrPaymentNotFound, providerReference)
		}
		return nil, fmt.Errorf("failed to get payment for update: %w", err)
	}
	return &payment, nil
}

// UpdatePaymentStatus atualiza o status de um pagamento
func (r *PostgresPaymentRepository) UpdatePaymentStatus(ctx context.Context, tx postgres.Tx, paymentID string, status string) error {
	pgTx := postgres.Unwrap(tx)
	_, err := pgTx.Exec(ctx, `
		UPDATE payments
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, paymentID)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	return nil
}
