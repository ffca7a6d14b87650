package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"

	"github.com/lojinha/ecommerce-backend/orders"
)

// NotificationKind representa o tipo de notificação de pagamento
type NotificationKind string

const (
	NotificationSuccess NotificationKind = "success"
	NotificationFailure NotificationKind = "failure"
	NotificationRefund  NotificationKind = "refund"
)

// Notifier é o colaborador externo de notificação (e-mail, fatura).
// Chamado em fire-and-forget: falhas aqui nunca desfazem a transição
// de estado que as originou.
type Notifier interface {
	Notify(ctx context.Context, order *orders.Order, payment *Payment, kind NotificationKind) error
}

// LogNotifier registra as notificações no log (default em desenvolvimento)
type LogNotifier struct{}

// Notify registra a notificação
func (n *LogNotifier) Notify(_ context.Context, order *orders.Order, payment *Payment, kind NotificationKind) error {
	log.Printf("📧 [NOTIFY] kind=%s OrderID=%s PaymentID=%s Amount=%s", kind, order.ID, payment.ID, payment.Amount.StringFixed(2))
	return nil
}

// HTTPNotifier entrega as notificações a um serviço externo
type HTTPNotifier struct {
	client *resty.Client
}

// NewHTTPNotifier cria uma nova instância de HTTPNotifier
func NewHTTPNotifier(baseURL string) *HTTPNotifier {
	return &HTTPNotifier{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(10 * time.Second),
	}
}

type notificationPayload struct {
	Kind      string `json:"kind"`
	OrderID   string `json:"order_id"`
	UserID    string `json:"user_id"`
	PaymentID string `json:"payment_id"`
	Amount    string `json:"amount"`
	Status    string `json:"status"`
}

// Notify envia a notificação ao serviço externo
func (n *HTTPNotifier) Notify(ctx context.Context, order *orders.Order, payment *Payment, kind NotificationKind) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(notificationPayload{
			Kind:      string(kind),
			OrderID:   order.ID,
			UserID:    order.UserID,
			PaymentID: payment.ID,
			Amount:    payment.Amount.StringFixed(2),
			Status:    payment.Status,
		}).
		Post("/api/notifications")
	if err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("notification service returned status %d", resp.StatusCode())
	}
	return nil
}
