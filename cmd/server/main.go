package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/lojinha/ecommerce-backend/catalog"
	"github.com/lojinha/ecommerce-backend/migrations"
	"github.com/lojinha/ecommerce-backend/orders"
	"github.com/lojinha/ecommerce-backend/payments"
	"github.com/lojinha/ecommerce-backend/postgres"
)

// Config representa a configuração do serviço
type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	ServiceName string `envconfig:"SERVICE_NAME" default:"ecommerce-backend"`

	DatabaseUser     string `envconfig:"DATABASE_USER" default:"root"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD" default:"pass"`
	DatabaseHost     string `envconfig:"DATABASE_HOST" default:"localhost"`
	DatabasePort     string `envconfig:"DATABASE_PORT" default:"5432"`
	DatabaseName     string `envconfig:"DATABASE_NAME" default:"ecommerce_db"`

	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4318"`

	WebhookSecret  string `envconfig:"PAYMENT_WEBHOOK_SECRET" default:"whsec_dev_secret"`
	CardGatewayURL string `envconfig:"CARD_GATEWAY_URL" default:"https://api.stripe.com"`
	CardGatewayKey string `envconfig:"CARD_GATEWAY_KEY"`

	MpesaBaseURL        string `envconfig:"MPESA_BASE_URL" default:"https://sandbox.safaricom.co.ke"`
	MpesaConsumerKey    string `envconfig:"MPESA_CONSUMER_KEY"`
	MpesaConsumerSecret string `envconfig:"MPESA_CONSUMER_SECRET"`
	MpesaShortcode      string `envconfig:"MPESA_SHORTCODE"`
	MpesaPasskey        string `envconfig:"MPESA_PASSKEY"`
	MpesaCallbackURL    string `envconfig:"MPESA_CALLBACK_URL" default:"https://yourdomain.com/api/payments/webhook"`

	NotificationURL string `envconfig:"NOTIFICATION_URL"`
}

func main() {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize OpenTelemetry
	tp, err := initTracer(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	mp, err := initMetrics(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}
	defer func() {
		if err := mp.Shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down meter: %v", err)
		}
	}()

	// Initialize database
	dbPool, err := initDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbPool.Close()

	if err := runMigrations(cfg); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize dependencies
	tracer := tp.Tracer(cfg.ServiceName)
	meter := mp.Meter(cfg.ServiceName)

	checkoutCounter, err := meter.Int64Counter("orders_checkout_total")
	if err != nil {
		log.Fatalf("Failed to create checkout counter: %v", err)
	}
	webhookCounter, err := meter.Int64Counter("payment_webhook_events_total")
	if err != nil {
		log.Fatalf("Failed to create webhook counter: %v", err)
	}

	catalogRepository := catalog.NewRepository(dbPool)
	inventoryUseCase := catalog.NewInventoryUseCase(catalogRepository)
	productHandler := catalog.NewProductHandler(inventoryUseCase, tracer)

	orderRepository := orders.NewOrderRepository(dbPool)
	orderUseCase := orders.NewOrderUseCase(orderRepository, inventoryUseCase, checkoutCounter)
	orderHandler := orders.NewOrderHandler(orderUseCase, tracer)

	paymentRepository := payments.NewPaymentRepository(dbPool)
	cardGateway := payments.NewCardGateway(payments.CardGatewayConfig{
		BaseURL: cfg.CardGatewayURL,
		APIKey:  cfg.CardGatewayKey,
	})
	mpesaGateway := payments.NewMpesaClient(payments.MpesaConfig{
		BaseURL:        cfg.MpesaBaseURL,
		ConsumerKey:    cfg.MpesaConsumerKey,
		ConsumerSecret: cfg.MpesaConsumerSecret,
		Shortcode:      cfg.MpesaShortcode,
		Passkey:        cfg.MpesaPasskey,
		CallbackURL:    cfg.MpesaCallbackURL,
	})

	var notifier payments.Notifier = &payments.LogNotifier{}
	if cfg.NotificationURL != "" {
		notifier = payments.NewHTTPNotifier(cfg.NotificationURL)
	}

	paymentUseCase := payments.NewPaymentUseCase(paymentRepository, orderUseCase, cardGateway, mpesaGateway, notifier, webhookCounter)
	paymentHandler := payments.NewPaymentHandler(paymentUseCase, tracer, cfg.WebhookSecret)

	// Setup Gin router
	r := gin.Default()
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(identity())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": cfg.ServiceName,
		})
	})

	api := r.Group("/api")
	{
		api.GET("/products", productHandler.ListProducts)
		api.GET("/products/:id", productHandler.GetProduct)
		api.GET("/categories", productHandler.ListCategories)
		api.GET("/coupons", orderHandler.ListCoupons)

		api.POST("/orders", orderHandler.Checkout)
		api.GET("/orders", orderHandler.ListOrders)
		api.GET("/orders/:id", orderHandler.GetOrder)
		api.POST("/orders/:id/items", orderHandler.AddItem)
		api.PATCH("/orders/:id/items/:itemID", orderHandler.UpdateItem)
		api.DELETE("/orders/:id/items/:itemID", orderHandler.RemoveItem)
		api.POST("/orders/:id/cancel", orderHandler.CancelOrder)
		api.GET("/orders/:id/payment", paymentHandler.GetPaymentByOrder)

		api.POST("/payments/card", paymentHandler.CreateCardPayment)
		api.POST("/payments/mpesa", paymentHandler.CreateMpesaPayment)
		// Assinatura verificada no próprio handler, antes de qualquer efeito
		api.POST("/payments/webhook", paymentHandler.HandleWebhook)

		admin := api.Group("", requireAdmin())
		{
			admin.POST("/products", productHandler.CreateProduct)
			admin.POST("/products/:id/stock", productHandler.AddStock)
			admin.GET("/products/:id/stock-logs", productHandler.ListStockLogs)
			admin.POST("/categories", productHandler.CreateCategory)
			admin.POST("/coupons", orderHandler.CreateCoupon)
		}
	}

	log.Printf("🚀 %s listening on port %s", cfg.ServiceName, cfg.Port)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func initDB(cfg Config) (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.DatabaseUser,
		cfg.DatabasePassword,
		cfg.DatabaseHost,
		cfg.DatabasePort,
		cfg.DatabaseName,
	)
	return postgres.Connect(context.Background(), dsn)
}

func runMigrations(cfg Config) error {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to load migration source: %w", err)
	}

	url := fmt.Sprintf(
		"pgx5://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.DatabaseUser,
		cfg.DatabasePassword,
		cfg.DatabaseHost,
		cfg.DatabasePort,
		cfg.DatabaseName,
	)

	m, err := migrate.NewWithSourceInstance("iofs", source, url)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	log.Println("✅ Database migrations applied")
	return nil
}

func initTracer(cfg Config) (*sdktrace.TracerProvider, error) {
	ctx := context.Background()

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	otel.SetTracerProvider(tp)

	return tp, nil
}

func initMetrics(cfg Config) (*sdkmetric.MeterProvider, error) {
	ctx := context.Background()

	exporter, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetrichttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	return mp, nil
}
