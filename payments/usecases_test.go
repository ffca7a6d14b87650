package payments

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/lojinha/ecommerce-backend/orders"
	"github.com/lojinha/ecommerce-backend/postgres"
)

// MockTx é um mock de postgres.Tx
type MockTx struct {
	mock.Mock
}

func (m *MockTx) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTx) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

// MockPaymentRepository é um mock de PaymentRepository
type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) BeginTx(ctx context.Context) (postgres.Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(postgres.Tx), args.Error(1)
}

func (m *MockPaymentRepository) CreatePayment(ctx context.Context, payment *Payment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

func (m *MockPaymentRepository) GetPaymentByOrderID(ctx context.Context, orderID string) (*Payment, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Payment), args.Error(1)
}

func (m *MockPaymentRepository) GetPaymentByReferenceForUpdate(ctx context.Context, tx postgres.Tx, providerReference string) (*Payment, error) {
	args := m.Called(ctx, tx, providerReference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Payment), args.Error(1)
}

func (m *MockPaymentRepository) UpdatePaymentStatus(ctx context.Context, tx postgres.Tx, paymentID string, status string) error {
	args := m.Called(ctx, tx, paymentID, status)
	return args.Error(0)
}

// MockOrdersService é um mock de OrdersService
type MockOrdersService struct {
	mock.Mock
}

func (m *MockOrdersService) GetOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orders.Order), args.Error(1)
}

func (m *MockOrdersService) CompleteOrderTx(ctx context.Context, tx postgres.Tx, orderID string) error {
	args := m.Called(ctx, tx, orderID)
	return args.Error(0)
}

func (m *MockOrdersService) RefundOrderTx(ctx context.Context, tx postgres.Tx, orderID string) error {
	args := m.Called(ctx, tx, orderID)
	return args.Error(0)
}

// MockCardGateway é um mock de CardGateway
type MockCardGateway struct {
	mock.Mock
}

func (m *MockCardGateway) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (string, error) {
	args := m.Called(ctx, amount, currency, metadata)
	return args.String(0), args.Error(1)
}

// MockMpesaGateway é um mock de MpesaGateway
type MockMpesaGateway struct {
	mock.Mock
}

func (m *MockMpesaGateway) InitiateSTKPush(ctx context.Context, phoneNumber string, amount decimal.Decimal, reference, description string) (string, error) {
	args := m.Called(ctx, phoneNumber, amount, reference, description)
	return args.String(0), args.Error(1)
}

// stubNotifier sinaliza as notificações entregues pelo caminho fire-and-forget
type stubNotifier struct {
	delivered chan NotificationKind
}

func newStubNotifier() *stubNotifier {
	return &stubNotifier{delivered: make(chan NotificationKind, 8)}
}

func (s *stubNotifier) Notify(_ context.Context, _ *orders.Order, _ *Payment, kind NotificationKind) error {
	s.delivered <- kind
	return nil
}

func (s *stubNotifier) wait(t *testing.T) NotificationKind {
	t.Helper()
	select {
	case kind := <-s.delivered:
		return kind
	case <-time.After(2 * time.Second):
		t.Fatal("expected a notification, got none")
		return ""
	}
}

func pendingOrder() *orders.Order {
	return &orders.Order{
		ID:          "order-1",
		UserID:      "user-1",
		Status:      orders.OrderStatusPending,
		TotalAmount: decimal.RequireFromString("149.90"),
	}
}

func TestCreateCardPaymentSuccess(t *testing.T) {
	// Arrange
	mockRepo := new(MockPaymentRepository)
	mockOrders := new(MockOrdersService)
	mockGateway := new(MockCardGateway)
	useCase := NewPaymentUseCase(mockRepo, mockOrders, mockGateway, nil, newStubNotifier(), nil)

	order := pendingOrder()
	mockOrders.On("GetOrder", mock.Anything, "order-1").Return(order, nil)
	mockRepo.On("GetPaymentByOrderID", mock.Anything, "order-1").Return(nil, ErrPaymentNotFound)
	mockGateway.On("CreateIntent", mock.Anything, order.TotalAmount, "usd", mock.Anything).Return("pi_abc123", nil)
	mockRepo.On("CreatePayment", mock.Anything, mock.AnythingOfType("*payments.Payment")).Return(nil)

	// Act
	payment, err := useCase.CreateCardPayment(context.Background(), "order-1")

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, PaymentStatusPending, payment.Status)
	assert.Equal(t, PaymentMethodCard, payment.Method)
	assert.Equal(t, "pi_abc123", payment.ProviderReference)
	assert.True(t, payment.Amount.Equal(order.TotalAmount))
	mockRepo.AssertExpectations(t)
	mockGateway.AssertExpectations(t)
}

func TestCreateCardPaymentAlreadyExists(t *testing.T) {
	// Arrange: pagamento um-para-um com o pedido
	mockRepo := new(MockPaymentRepository)
	mockOrders := new(MockOrdersService)
	mockGateway := new(MockCardGateway)
	useCase := NewPaymentUseCase(mockRepo, mockOrders, mockGateway, nil, newStubNotifier(), nil)

	existing := NewPayment("pay-1", "order-1", PaymentMethodCard, "pi_old", decimal.NewFromInt(10))
	mockOrders.On("GetOrder", mock.Anything, "order-1").Return(pendingOrder(), nil)
	mockRepo.On("GetPaymentByOrderID", mock.Anything, "order-1").Return(existing, nil)

	// Act
	payment, err := useCase.CreateCardPayment(context.Background(), "order-1")

	// Assert
	assert.ErrorIs(t, err, ErrPaymentAlreadyExists)
	assert.Nil(t, payment)
	mockGateway.AssertNotCalled(t, "CreateIntent")
	mockRepo.AssertNotCalled(t, "CreatePayment")
}

func TestCreateCardPaymentGatewayFailure(t *testing.T) {
	// Arrange: falha do gateway não deixa estado local para trás
	mockRepo := new(MockPaymentRepository)
	mockOrders := new(MockOrdersService)
	mockGateway := new(MockCardGateway)
	useCase := NewPaymentUseCase(mockRepo, mockOrders, mockGateway, nil, newStubNotifier(), nil)

	mockOrders.On("GetOrder", mock.Anything, "order-1").Return(pendingOrder(), nil)
	mockRepo.On("GetPaymentByOrderID", mock.Anything, "order-1").Return(nil, ErrPaymentNotFound)
	mockGateway.On("CreateIntent", mock.Anything, mock.Anything, "usd", mock.Anything).
		Return("", ErrGatewayUnavailable)

	// Act
	payment, err := useCase.CreateCardPayment(context.Background(), "order-1")

	// Assert
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
	assert.Nil(t, payment)
	mockRepo.AssertNotCalled(t, "CreatePayment")
}

func TestInitiateMpesaPushSuccess(t *testing.T) {
	// Arrange
	mockRepo := new(MockPaymentRepository)
	mockOrders := new(MockOrdersService)
	mockGateway := new(MockMpesaGateway)
	useCase := NewPaymentUseCase(mockRepo, mockOrders, nil, mockGateway, newStubNotifier(), nil)

	order := pendingOrder()
	mockOrders.On("GetOrder", mock.Anything, "order-1").Return(order, nil)
	mockRepo.On("GetPaymentByOrderID", mock.Anything, "order-1").Return(nil, ErrPaymentNotFound)
	mockGateway.On("InitiateSTKPush", mock.Anything, "254712345678", order.TotalAmount, "OrderPayment", mock.Anything).
		Return("ws_CO_12345", nil)
	mockRepo.On("CreatePayment", mock.Anything, mock.AnythingOfType("*payments.Payment")).Return(nil)

	// Act
	payment, err := useCase.InitiateMpesaPush(context.Background(), "order-1", "254712345678")

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, PaymentMethodMpesa, payment.Method)
	assert.Equal(t, "ws_CO_12345", payment.ProviderReference)
	assert.Equal(t, PaymentStatusPending, payment.Status)
	mockGateway.AssertExpectations(t)
}

func TestHandlePaymentSucceededIsIdempotent(t *testing.T) {
	// Arrange: o mesmo evento entregue duas vezes aplica a transição uma vez
	mockRepo := new(MockPaymentRepository)
	mockOrders := new(MockOrdersService)
	mockTx := new(MockTx)
	notifier := newStubNotifier()
	useCase := NewPaymentUseCase(mockRepo, mockOrders, nil, nil, notifier, nil)

	pending := NewPayment("pay-1", "order-1", PaymentMethodCard, "pi_123", decimal.NewFromInt(100))
	completed := NewPayment("pay-1", "order-1", PaymentMethodCard, "pi_123", decimal.NewFromInt(100))
	completed.Status = PaymentStatusCompleted

	mockRepo.On("BeginTx", mock.Anything).Return(mockTx, nil)
	mockRepo.On("GetPaymentByReferenceForUpdate", mock.Anything, mockTx, "pi_123").Return(pending, nil).Once()
	mockRepo.On("GetPaymentByReferenceForUpdate", mock.Anything, mockTx, "pi_123").Return(completed, nil).Once()
	mockRepo.On("UpdatePaymentStatus", mock.Anything, mockTx, "pay-1", PaymentStatusCompleted).Return(nil)
	mockOrders.On("CompleteOrderTx", mock.Anything, mockTx, "order-1").Return(nil)
	mockOrders.On("GetOrder", mock.Anything, "order-1").Return(pendingOrder(), nil)
	mockTx.On("Commit").Return(nil)
	mockTx.On("Rollback").Return(nil)

	// Act: primeira entrega aplica
	err := useCase.HandlePaymentSucceeded(context.Background(), "pi_123")
	assert.NoError(t, err)
	assert.Equal(t, NotificationSuccess, notifier.wait(t))

	// Act: reentrega é no-op
	err = useCase.HandlePaymentSucceeded(context.Background(), "pi_123")
	assert.NoError(t, err)

	// Assert: transição e commit aconteceram exatamente uma vez
	mockRepo.AssertNumberOfCalls(t, "UpdatePaymentStatus", 1)
	mockOrders.AssertNumberOfCalls(t, "CompleteOrderTx", 1)
	mockTx.AssertNumberOfCalls(t, "Commit", 1)
}

func TestHandlePaymentSucceededUnknownReferenceIgnored(t *testing.T) {
	// Arrange: referência de outra loja, confirmada e descartada
	mockRepo := new(MockPaymentRepository)
	mockOrders := new(MockOrdersService)
	mockTx := new(MockTx)
	useCase := NewPaymentUseCase(mockRepo, mockOrders, nil, nil, newStubNotifier(), nil)

	mockRepo.On("BeginTx", mock.Anything).Return(mockTx, nil)
	mockRepo.On("GetPaymentByReferenceForUpdate", mock.Anything, mockTx, "pi_unknown").
		Return(nil, ErrPaymentNotFound)
	mockTx.On("Rollback").Return(nil)

	// Act
	err := useCase.HandlePaymentSucceeded(context.Background(), "pi_unknown")

	// Assert
	assert.NoError(t, err)
	mockRepo.AssertNotCalled(t, "UpdatePaymentStatus")
	mockOrders.AssertNotCalled(t, "CompleteOrderTx")
	mockTx.AssertNotCalled(t, "Commit")
}

func TestHandlePaymentFailedLeavesOrderUntouched(t *testing.T) {
	// Arrange: falha marca o pagamento, mas não cancela o pedido
	mockRepo := new(MockPaymentRepository)
	mockOrders := new(MockOrdersService)
	mockTx := new(MockTx)
	notifier := newStubNotifier()
	useCase := NewPaymentUseCase(mockRepo, mockOrders, nil, nil, notifier, nil)

	pending := NewPayment("pay-1", "order-1", PaymentMethodCard, "pi_123", decimal.NewFromInt(100))

	mockRepo.On("BeginTx", mock.Anything).Return(mockTx, nil)
	mockRepo.On("GetPaymentByReferenceForUpdate", mock.Anything, mockTx, "pi_123").Return(pending, nil)
	mockRepo.On("UpdatePaymentStatus", mock.Anything, mockTx, "pay-1", PaymentStatusFailed).Return(nil)
	mockOrders.On("GetOrder", mock.Anything, "order-1").Return(pendingOrder(), nil)
	mockTx.On("Commit").Return(nil)
	mockTx.On("Rollback").Return(nil)

	// Act
	err := useCase.HandlePaymentFailed(context.Background(), "pi_123")

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, NotificationFailure, notifier.wait(t))
	mockOrders.AssertNotCalled(t, "CompleteOrderTx")
	mockOrders.AssertNotCalled(t, "RefundOrderTx")
}

func TestHandleChargeRefundedRestoresStockOnce(t *testing.T) {
	// Arrange: estorno reentregue devolve estoque uma única vez
	mockRepo := new(MockPaymentRepository)
	mockOrders := new(MockOrdersService)
	mockTx := new(MockTx)
	notifier := newStubNotifier()
	useCase := NewPaymentUseCase(mockRepo, mockOrders, nil, nil, notifier, nil)

	completed := NewPayment("pay-1", "order-1", PaymentMethodCard, "pi_123", decimal.NewFromInt(100))
	completed.Status = PaymentStatusCompleted
	refunded := NewPayment("pay-1", "order-1", PaymentMethodCard, "pi_123", decimal.NewFromInt(100))
	refunded.Status = PaymentStatusRefunded

	mockRepo.On("BeginTx", mock.Anything).Return(mockTx, nil)
	mockRepo.On("GetPaymentByReferenceForUpdate", mock.Anything, mockTx, "pi_123").Return(completed, nil).Once()
	mockRepo.On("GetPaymentByReferenceForUpdate", mock.Anything, mockTx, "pi_123").Return(refunded, nil).Once()
	mockRepo.On("UpdatePaymentStatus", mock.Anything, mockTx, "pay-1", PaymentStatusRefunded).Return(nil)
	mockOrders.On("RefundOrderTx", mock.Anything, mockTx, "order-1").Return(nil)
	mockOrders.On("GetOrder", mock.Anything, "order-1").Return(pendingOrder(), nil)
	mockTx.On("Commit").Return(nil)
	mockTx.On("Rollback").Return(nil)

	// Act
	err := useCase.HandleChargeRefunded(context.Background(), "pi_123")
	assert.NoError(t, err)
	assert.Equal(t, NotificationRefund, notifier.wait(t))

	err = useCase.HandleChargeRefunded(context.Background(), "pi_123")
	assert.NoError(t, err)

	// Assert: RefundOrderTx (que devolve o estoque) rodou uma vez só
	mockOrders.AssertNumberOfCalls(t, "RefundOrderTx", 1)
	mockRepo.AssertNumberOfCalls(t, "UpdatePaymentStatus", 1)
}

func TestHandleChargeRefundedOnPendingPayment(t *testing.T) {
	// Arrange: estorno antes do sucesso é evento fora de ordem, ignorado
	mockRepo := new(MockPaymentRepository)
	mockOrders := new(MockOrdersService)
	mockTx := new(MockTx)
	useCase := NewPaymentUseCase(mockRepo, mockOrders, nil, nil, newStubNotifier(), nil)

	pending := NewPayment("pay-1", "order-1", PaymentMethodCard, "pi_123", decimal.NewFromInt(100))

	mockRepo.On("BeginTx", mock.Anything).Return(mockTx, nil)
	mockRepo.On("GetPaymentByReferenceForUpdate", mock.Anything, mockTx, "pi_123").Return(pending, nil)
	mockTx.On("Rollback").Return(nil)

	// Act
	err := useCase.HandleChargeRefunded(context.Background(), "pi_123")

	// Assert
	assert.NoError(t, err)
	mockRepo.AssertNotCalled(t, "UpdatePaymentStatus")
	mockOrders.AssertNotCalled(t, "RefundOrderTx")
	mockTx.AssertNotCalled(t, "Commit")
}
