package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"

	"counterserve/internal/messaging"
	"counterserve/internal/orders"
	"counterserve/internal/payment"
	"counterserve/internal/payment/paypal"
	"counterserve/internal/payment/stripe"
	"counterserve/internal/session"
	"counterserve/internal/telemetry"
)

const serviceVersion = "0.1.0"

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "counterserve", serviceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("counterserve", serviceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	if err := runtime.Start(); err != nil {
		logger.Error("failed to start runtime instrumentation", "error", err)
		os.Exit(1)
	}

	orderMetrics, err := telemetry.NewOrderMetrics()
	if err != nil {
		logger.Error("failed to create order metrics", "error", err)
		os.Exit(1)
	}

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	db, err := telemetry.OpenDB(postgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	var placedProducer, paidProducer *messaging.Producer
	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers != "" {
		brokers := strings.Split(kafkaBrokers, ",")
		placedProducer = messaging.NewProducer(brokers, messaging.TopicOrderPlaced)
		defer func() { _ = placedProducer.Close() }()
		paidProducer = messaging.NewProducer(brokers, messaging.TopicOrderPaid)
		defer func() { _ = paidProducer.Close() }()
	}

	publicURL := os.Getenv("PUBLIC_URL")
	if publicURL == "" {
		publicURL = "http://localhost:8080"
	}

	sessions := session.NewManager(session.NewMemoryStore(nil), sessionTTL(logger), nil)
	repo := orders.NewOrderRepository(db)
	sequencer := orders.NewSequencer(repo, nil, logger)

	orderService := orders.NewService(sessions, repo, sequencer, eventPublisher(placedProducer), nil, logger)
	orderHandler := orders.NewHandler(orderService, orderMetrics, logger)

	providerClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	registry := payment.NewRegistry(
		paypal.New(paypal.Config{
			BaseURL:      os.Getenv("PAYPAL_BASE_URL"),
			ClientID:     os.Getenv("PAYPAL_CLIENT_ID"),
			ClientSecret: os.Getenv("PAYPAL_CLIENT_SECRET"),
			Currency:     os.Getenv("CURRENCY"),
		}, providerClient),
		stripe.New(stripe.Config{
			BaseURL:       os.Getenv("STRIPE_BASE_URL"),
			CheckoutURL:   os.Getenv("STRIPE_CHECKOUT_URL"),
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			Currency:      strings.ToLower(os.Getenv("CURRENCY")),
		}, providerClient, nil),
	)

	settlement := payment.NewSettlement(registry, repo, eventPublisher(paidProducer), publicURL, nil, logger)
	paymentHandler := payment.NewHandler(settlement, orderMetrics, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /cart", telemetry.WithHTTPRoute(orderHandler.HandleGetCart))
	mux.HandleFunc("POST /cart/items", telemetry.WithHTTPRoute(orderHandler.HandleAddItem))
	mux.HandleFunc("POST /orders", telemetry.WithHTTPRoute(orderHandler.HandlePlaceOrder))
	mux.HandleFunc("DELETE /orders", telemetry.WithHTTPRoute(orderHandler.HandleRemoveOrder))
	mux.HandleFunc("GET /kitchen/orders", telemetry.WithHTTPRoute(orderHandler.HandleListFulfillment))
	mux.HandleFunc("PATCH /kitchen/orders/{id}/status", telemetry.WithHTTPRoute(orderHandler.HandleAdvanceStatus))
	mux.HandleFunc("POST /orders/{id}/payments/{provider}", telemetry.WithHTTPRoute(paymentHandler.HandleStartPayment))
	mux.HandleFunc("GET /pay/{provider}/{ref}", telemetry.WithHTTPRoute(paymentHandler.HandleApprove))
	mux.HandleFunc("POST /webhooks/{provider}", telemetry.WithHTTPRoute(paymentHandler.HandleWebhook))
	mux.Handle("GET /metrics", metricsHandler)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, "counterserve",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting counterserve", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

func sessionTTL(logger *slog.Logger) time.Duration {
	raw := os.Getenv("SESSION_TTL")
	if raw == "" {
		return session.DefaultTTL
	}

	ttl, err := time.ParseDuration(raw)
	if err != nil {
		logger.Warn("invalid SESSION_TTL, using default", "value", raw)
		return session.DefaultTTL
	}
	return ttl
}

// eventPublisher keeps a typed nil producer from sneaking into the services'
// nil checks behind a non-nil interface.
func eventPublisher(p *messaging.Producer) orders.EventPublisher {
	if p == nil {
		return nil
	}
	return p
}
