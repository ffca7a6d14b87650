package payments

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrGatewayUnavailable indica falha transitória do provedor externo
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrInvalidWebhookSignature indica assinatura de webhook inválida
	ErrInvalidWebhookSignature = errors.New("invalid webhook signature")
	// ErrPaymentNotFound indica que o pagamento não existe
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrPaymentAlreadyExists indica que o pedido já tem um pagamento
	ErrPaymentAlreadyExists = errors.New("payment already exists for order")
)

// PaymentStatus representa os possíveis status de um pagamento.
// completed, failed e refunded são terminais, exceto completed -> refunded.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

// PaymentMethod representa o meio de pagamento
const (
	PaymentMethodCard  = "card"
	PaymentMethodMpesa = "mpesa"
)

// Payment representa um pagamento, um-para-um com um pedido. O
// ProviderReference é o identificador opaco emitido pelo gateway que
// correlaciona o pagamento local à transação remota.
type Payment struct {
	ID                string          `json:"id" db:"id"`
	OrderID           string          `json:"order_id" db:"order_id"`
	Method            string          `json:"method" db:"method"`
	ProviderReference string          `json:"provider_reference" db:"provider_reference"`
	Amount            decimal.Decimal `json:"amount" db:"amount"`
	Status            string          `json:"status" db:"status"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// NewPayment cria uma nova instância de Payment
func NewPayment(id, orderID, method, providerReference string, amount decimal.Decimal) *Payment {
	return &Payment{
		ID:                id,
		OrderID:           orderID,
		Method:            method,
		ProviderReference: providerReference,
		Amount:            amount,
		Status:            PaymentStatusPending,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}
}

// Complete aplica a transição pending -> completed. Retorna false quando a
// transição não é um avanço legal (evento reentregue ou fora de ordem);
// nesse caso nada deve ser aplicado.
func (p *Payment) Complete() bool {
	if p.Status != PaymentStatusPending {
		return false
	}
	p.Status = PaymentStatusCompleted
	return true
}

// Fail aplica a transição pending -> failed
func (p *Payment) Fail() bool {
	if p.Status != PaymentStatusPending {
		return false
	}
	p.Status = PaymentStatusFailed
	return true
}

// Refund aplica a transição completed -> refunded
func (p *Payment) Refund() bool {
	if p.Status != PaymentStatusCompleted {
		return false
	}
	p.Status = PaymentStatusRefunded
	return true
}
