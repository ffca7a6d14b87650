package payments

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// CardGateway abstrai o provedor de pagamento com cartão
type CardGateway interface {
	// CreateIntent cria uma intenção de pagamento e retorna a referência do provedor
	CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (string, error)
}

// CardGatewayConfig configura o cliente do provedor de cartão
type CardGatewayConfig struct {
	BaseURL string
	APIKey  string
}

// RestyCardGateway implementa CardGateway via HTTP
type RestyCardGateway struct {
	client *resty.Client
}

// NewCardGateway cria uma nova instância de RestyCardGateway
func NewCardGateway(cfg CardGatewayConfig) *RestyCardGateway {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.APIKey).
		SetTimeout(15 * time.Second)
	return &RestyCardGateway{client: client}
}

type createIntentRequest struct {
	// Valor na menor unidade da moeda (centavos)
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type createIntentResponse struct {
	ID string `json:"id"`
}

// CreateIntent cria a intenção de pagamento no provedor
func (g *RestyCardGateway) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (string, error) {
	var result createIntentResponse

	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(createIntentRequest{
			Amount:   amount.Mul(decimal.NewFromInt(100)).IntPart(),
			Currency: currency,
			Metadata: metadata,
		}).
		SetResult(&result).
		Post("/v1/payment_intents")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode())
	}
	if result.ID == "" {
		return "", fmt.Errorf("%w: missing intent id in response", ErrGatewayUnavailable)
	}

	return result.ID, nil
}

// MpesaGateway abstrai o provedor de mobile money
type MpesaGateway interface {
	// InitiateSTKPush inicia a cobrança push e retorna o CheckoutRequestID
	InitiateSTKPush(ctx context.Context, phoneNumber string, amount decimal.Decimal, accountReference, description string) (string, error)
}

// Credenciais default do sandbox da Safaricom
const (
	defaultSandboxShortcode = "174379"
	defaultSandboxPasskey   = "bfb279f9aa9bdbcf158e97dd71a467cd2e0c893059b10f78e6b72ada1ed2c919"
)

// MpesaConfig configura o cliente M-Pesa
type MpesaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	Shortcode      string
	Passkey        string
	CallbackURL    string
}

// MpesaClient implementa MpesaGateway via HTTP
type MpesaClient struct {
	client *resty.Client
	cfg    MpesaConfig
}

// NewMpesaClient cria uma nova instância de MpesaClient
func NewMpesaClient(cfg MpesaConfig) *MpesaClient {
	if cfg.Shortcode == "" {
		cfg.Shortcode = defaultSandboxShortcode
	}
	if cfg.Passkey == "" {
		cfg.Passkey = defaultSandboxPasskey
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(15 * time.Second)
	return &MpesaClient{client: client, cfg: cfg}
}

type mpesaTokenResponse struct {
	AccessToken string `json:"access_token"`
}

// getAccessToken gera o token de acesso da API M-Pesa
func (m *MpesaClient) getAccessToken(ctx context.Context) (string, error) {
	var result mpesaTokenResponse

	resp, err := m.client.R().
		SetContext(ctx).
		SetBasicAuth(m.cfg.ConsumerKey, m.cfg.ConsumerSecret).
		SetQueryParam("grant_type", "client_credentials").
		SetResult(&result).
		Get("/oauth/v1/generate")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if resp.IsError() || result.AccessToken == "" {
		return "", fmt.Errorf("%w: failed to get access token", ErrGatewayUnavailable)
	}

	return result.AccessToken, nil
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            string `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResponseCode      string `json:"ResponseCode"`
	ResponseDesc      string `json:"ResponseDescription"`
}

// InitiateSTKPush inicia o Lipa Na M-Pesa Online (STK Push). A liquidação
// chega depois, pelo canal assíncrono de callbacks.
func (m *MpesaClient) InitiateSTKPush(ctx context.Context, phoneNumber string, amount decimal.Decimal, accountReference, description string) (string, error) {
	token, err := m.getAccessToken(ctx)
	if err != nil {
		return "", err
	}

	timestamp := time.Now().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString([]byte(m.cfg.Shortcode + m.cfg.Passkey + timestamp))

	var result stkPushResponse
	resp, err := m.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(stkPushRequest{
			BusinessShortCode: m.cfg.Shortcode,
			Password:          password,
			Timestamp:         timestamp,
			TransactionType:   "CustomerPayBillOnline",
			Amount:            amount.Round(0).String(),
			PartyA:            phoneNumber,
			PartyB:            m.cfg.Shortcode,
			PhoneNumber:       phoneNumber,
			CallBackURL:       m.cfg.CallbackURL,
			AccountReference:  accountReference,
			TransactionDesc:   description,
		}).
		SetResult(&result).
		Post("/mpesa/stkpush/v1/processrequest")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if resp.IsError() || result.CheckoutRequestID == "" {
		log.Printf("❌ STK Push request failed: status=%d desc=%s", resp.StatusCode(), result.ResponseDesc)
		return "", fmt.Errorf("%w: STK push request failed", ErrGatewayUnavailable)
	}

	log.Printf("✅ STK Push initiated: CheckoutRequestID=%s", result.CheckoutRequestID)
	return result.CheckoutRequestID, nil
}
