package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/tu-usuario/facturacion-pro/internal/application/billing"
	infraafip "github.com/tu-usuario/facturacion-pro/internal/infrastructure/afip"
	"github.com/tu-usuario/facturacion-pro/internal/infrastructure/afip/signer"
	"github.com/tu-usuario/facturacion-pro/internal/infrastructure/postgres"
	httpRouter "github.com/tu-usuario/facturacion-pro/internal/interfaces/http"
	"github.com/tu-usuario/facturacion-pro/pkg/config"
	"github.com/tu-usuario/facturacion-pro/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("afip_env", cfg.AFIP.Environment).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	invoiceRepo := postgres.NewInvoiceRepository(pool)
	ticketRepo := postgres.NewTicketRepository(pool)
	configRepo := postgres.NewBranchConfigRepository(pool)
	saleRepo := postgres.NewSaleRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	// Certificado de firma AFIP: obligatorio en homo/prod, opcional en dev.
	var cert tls.Certificate
	certCUIT := ""
	if cfg.AFIP.Environment != infraafip.EnvDev {
		cert, err = signer.Load(cfg.AFIP.CertPath, cfg.AFIP.CertKeyPath, cfg.AFIP.CertPassword)
		if err != nil {
			log.Fatal().Err(err).Msg("cargar certificado AFIP")
		}
		certCUIT = extractCertCUIT(cert, log)
	}

	// Clientes AFIP: SOAP reales en homo/prod, simulador en memoria en dev.
	var wsaaClient infraafip.WSAAClient
	var wsfeClient infraafip.WSFEClient
	if cfg.AFIP.Environment == infraafip.EnvDev {
		dev := infraafip.NewDevClient()
		wsaaClient, wsfeClient = dev, dev
		log.Warn().Msg("AFIP en modo dev: sin llamadas a los web services")
	} else {
		wsaaClient = infraafip.NewSOAPWSAAClient(cfg.AFIP.Environment)
		wsfeClient = infraafip.NewSOAPWSFEClient(cfg.AFIP.Environment)
	}

	registry := billing.NewConfigRegistry(configRepo, certCUIT, log)
	ticketManager := billing.NewTicketManager(
		ticketRepo, wsaaClient, signer.NewCMSSigner(), cert,
		time.Duration(cfg.AFIP.TicketMarginMin)*time.Minute, log,
	)
	workflowCfg := billing.WorkflowConfig{
		MaxAttempts: cfg.AFIP.MaxAttempts,
		StaleAfter:  time.Duration(cfg.AFIP.StaleAfterMin) * time.Minute,
		EventKeep:   50,
	}
	workflow := billing.NewInvoiceWorkflow(
		invoiceRepo, saleRepo, txRunner, registry, ticketManager, wsfeClient,
		workflowCfg, log,
	)
	sweeper := billing.NewRetryCoordinator(invoiceRepo, workflow, workflowCfg, log)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 90, // El proceso de una factura espera a AFIP
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Facturación Pro API",
	}))

	httpRouter.Router(app, httpRouter.RouterDeps{
		Workflow:     workflow,
		Sweeper:      sweeper,
		Registry:     registry,
		Tickets:      ticketRepo,
		TicketMargin: time.Duration(cfg.AFIP.TicketMarginMin) * time.Minute,
		JWTSecret:    cfg.JWT.Secret,
	})

	// Barrido interno de reintentos (0 = se asume cron externo vía /api/invoices/sweep)
	sweepCtx, stopSweep := context.WithCancel(ctx)
	go sweeper.Run(sweepCtx, time.Duration(cfg.AFIP.SweepIntervalMin)*time.Minute)

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")
	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}

// extractCertCUIT lee la identidad (CUIT) del certificado cargado. Si no se
// puede extraer se sigue sin chequeo de coincidencia, solo con un warning.
func extractCertCUIT(cert tls.Certificate, log *logger.Logger) string {
	if len(cert.Certificate) == 0 {
		return ""
	}
	leaf := cert.Leaf
	if leaf == nil {
		parsed, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			log.Warn().Err(err).Msg("no se pudo parsear el certificado AFIP")
			return ""
		}
		leaf = parsed
	}
	cuit, err := signer.CertificateCUIT(leaf)
	if err != nil {
		log.Warn().Err(err).Msg("el certificado AFIP no declara CUIT")
		return ""
	}
	return cuit
}
