package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/metric"

	"github.com/lojinha/ecommerce-backend/orders"
	"github.com/lojinha/ecommerce-backend/postgres"
)

// OrdersService abstrai as transições de pedido acionadas pela
// reconciliação de pagamentos. As variantes Tx rodam dentro da
// transação do chamador.
type OrdersService interface {
	GetOrder(ctx context.Context, orderID string) (*orders.Order, error)
	CompleteOrderTx(ctx context.Context, tx postgres.Tx, orderID string) error
	RefundOrderTx(ctx context.Context, tx postgres.Tx, orderID string) error
}

// PaymentUseCase contém a lógica de negócio de pagamentos e a
// reconciliação de eventos do provedor
type PaymentUseCase struct {
	repository          PaymentRepository
	orders              OrdersService
	cardGateway         CardGateway
	mpesaGateway        MpesaGateway
	notifier            Notifier
	webhookEventCounter metric.Int64Counter
}

// NewPaymentUseCase cria uma nova instância de PaymentUseCase
func NewPaymentUseCase(
	repository PaymentRepository,
	ordersService OrdersService,
	cardGateway CardGateway,
	mpesaGateway MpesaGateway,
	notifier Notifier,
	webhookEventCounter metric.Int64Counter,
) *PaymentUseCase {
	return &PaymentUseCase{
		repository:          repository,
		orders:              ordersService,
		cardGateway:         cardGateway,
		mpesaGateway:        mpesaGateway,
		notifier:            notifier,
		webhookEventCounter: webhookEventCounter,
	}
}

// CreateCardPayment cria a intenção de pagamento no provedor de cartão e
// registra o pagamento pendente. Nenhuma mutação local precede a chamada
// externa; falha no gateway não corrompe estado.
func (uc *PaymentUseCase) CreateCardPayment(ctx context.Context, orderID string) (*Payment, error) {
	order, err := uc.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if _, err := uc.repository.GetPaymentByOrderID(ctx, orderID); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrPaymentAlreadyExists, orderID)
	} else if !errors.Is(err, ErrPaymentNotFound) {
		return nil, err
	}

	reference, err := uc.cardGateway.CreateIntent(ctx, order.TotalAmount, "usd", map[string]string{
		"order_id": order.ID,
	})
	if err != nil {
		log.Printf("❌ [CARD PAYMENT] OrderID=%s gateway error: %v", orderID, err)
		return nil, err
	}

	payment := NewPayment(uuid.New().String(), order.ID, PaymentMethodCard, reference, order.TotalAmount)
	if err := uc.repository.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	log.Printf("✅ [CARD PAYMENT] OrderID=%s Reference=%s Amount=%s", orderID, reference, payment.Amount.StringFixed(2))
	return payment, nil
}

// InitiateMpesaPush inicia a cobrança push de mobile money e registra o
// pagamento pendente apontando para a referência do provedor. A
// liquidação chega depois pelo caminho assíncrono de eventos.
func (uc *PaymentUseCase) InitiateMpesaPush(ctx context.Context, orderID, phoneNumber string) (*Payment, error) {
	order, err := uc.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if _, err := uc.repository.GetPaymentByOrderID(ctx, orderID); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrPaymentAlreadyExists, orderID)
	} else if !errors.Is(err, ErrPaymentNotFound) {
		return nil, err
	}

	reference, err := uc.mpesaGateway.InitiateSTKPush(ctx, phoneNumber, order.TotalAmount, "OrderPayment", "Payment for order "+order.ID)
	if err != nil {
		log.Printf("❌ [MPESA PAYMENT] OrderID=%s gateway error: %v", orderID, err)
		return nil, err
	}

	payment := NewPayment(uuid.New().String(), order.ID, PaymentMethodMpesa, reference, order.TotalAmount)
	if err := uc.repository.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	log.Printf("✅ [MPESA PAYMENT] OrderID=%s CheckoutRequestID=%s", orderID, reference)
	return payment, nil
}

// HandlePaymentSucceeded aplica o evento de sucesso: pagamento completed e
// pedido completed. O estoque já foi deduzido no checkout; o sucesso do
// pagamento não deduz de novo. Reentregas são no-ops.
func (uc *PaymentUseCase) HandlePaymentSucceeded(ctx context.Context, providerReference string) error {
	log.Printf("➡️ [PAYMENT SUCCEEDED] Reference: %s", providerReference)
	uc.countEvent(ctx)

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	payment, err := uc.getPaymentForEvent(ctx, tx, providerReference)
	if err != nil || payment == nil {
		return err
	}

	if !payment.Complete() {
		log.Printf("ℹ️ [IDEMPOTENCY] success event for payment %s in status %s ignored", payment.ID, payment.Status)
		return nil
	}

	if err := uc.repository.UpdatePaymentStatus(ctx, tx, payment.ID, PaymentStatusCompleted); err != nil {
		return err
	}
	if err := uc.orders.CompleteOrderTx(ctx, tx, payment.OrderID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit payment success: %w", err)
	}

	uc.notify(payment, NotificationSuccess)
	log.Printf("✅ [PAYMENT SUCCEEDED] PaymentID=%s OrderID=%s", payment.ID, payment.OrderID)
	return nil
}

// HandlePaymentFailed aplica o evento de falha: pagamento failed, pedido
// intacto (não cancela automaticamente)
func (uc *PaymentUseCase) HandlePaymentFailed(ctx context.Context, providerReference string) error {
	log.Printf("➡️ [PAYMENT FAILED] Reference: %s", providerReference)
	uc.countEvent(ctx)

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	payment, err := uc.getPaymentForEvent(ctx, tx, providerReference)
	if err != nil || payment == nil {
		return err
	}

	if !payment.Fail() {
		log.Printf("ℹ️ [IDEMPOTENCY] failure event for payment %s in status %s ignored", payment.ID, payment.Status)
		return nil
	}

	if err := uc.repository.UpdatePaymentStatus(ctx, tx, payment.ID, PaymentStatusFailed); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit payment failure: %w", err)
	}

	uc.notify(payment, NotificationFailure)
	log.Printf("⚠️ [PAYMENT FAILED] PaymentID=%s OrderID=%s", payment.ID, payment.OrderID)
	return nil
}

// HandleChargeRefunded aplica o evento de estorno: pagamento refunded,
// pedido refunded e estoque devolvido exatamente uma vez
func (uc *PaymentUseCase) HandleChargeRefunded(ctx context.Context, providerReference string) error {
	log.Printf("➡️ [CHARGE REFUNDED] Reference: %s", providerReference)
	uc.countEvent(ctx)

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	payment, err := uc.getPaymentForEvent(ctx, tx, providerReference)
	if err != nil || payment == nil {
		return err
	}

	if !payment.Refund() {
		log.Printf("ℹ️ [IDEMPOTENCY] refund event for payment %s in status %s ignored", payment.ID, payment.Status)
		return nil
	}

	if err := uc.repository.UpdatePaymentStatus(ctx, tx, payment.ID, PaymentStatusRefunded); err != nil {
		return err
	}
	if err := uc.orders.RefundOrderTx(ctx, tx, payment.OrderID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit refund: %w", err)
	}

	uc.notify(payment, NotificationRefund)
	log.Printf("↩️ [CHARGE REFUNDED] PaymentID=%s OrderID=%s", payment.ID, payment.OrderID)
	return nil
}

// getPaymentForEvent trava o pagamento pela referência do provedor.
// Referências desconhecidas são ignoradas (nil, nil), como reentregas
// de transações que não pertencem a este sistema.
func (uc *PaymentUseCase) getPaymentForEvent(ctx context.Context, tx postgres.Tx, providerReference string) (*Payment, error) {
	payment, err := uc.repository.GetPaymentByReferenceForUpdate(ctx, tx, providerReference)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			log.Printf("ℹ️ [WEBHOOK] no payment for reference %s, event ignored", providerReference)
			return nil, nil
		}
		return nil, err
	}
	return payment, nil
}

// notify entrega a notificação em fire-and-forget após o commit
func (uc *PaymentUseCase) notify(payment *Payment, kind NotificationKind) {
	go func() {
		ctx := context.Background()
		order, err := uc.orders.GetOrder(ctx, payment.OrderID)
		if err != nil {
			log.Printf("❌ [NOTIFY] failed to load order %s: %v", payment.OrderID, err)
			return
		}
		if err := uc.notifier.Notify(ctx, order, payment, kind); err != nil {
			log.Printf("❌ [NOTIFY] delivery failed for order %s: %v", payment.OrderID, err)
		}
	}()
}

// GetPaymentByOrder busca o pagamento de um pedido
func (uc *PaymentUseCase) GetPaymentByOrder(ctx context.Context, orderID string) (*Payment, error) {
	return uc.repository.GetPaymentByOrderID(ctx, orderID)
}

func (uc *PaymentUseCase) countEvent(ctx context.Context) {
	if uc.webhookEventCounter != nil {
		uc.webhookEventCounter.Add(ctx, 1)
	}
}
