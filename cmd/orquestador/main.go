package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pharmatrack/orquestador/internal/coordinator"
	"github.com/pharmatrack/orquestador/internal/coordinator/sagalog"
	sagasqlite "github.com/pharmatrack/orquestador/internal/coordinator/sagalog/sqlite"
	"github.com/pharmatrack/orquestador/internal/orquestador/config"
	"github.com/pharmatrack/orquestador/internal/orquestador/infra/adapters/service"
	"github.com/pharmatrack/orquestador/internal/orquestador/infra/httpx"
	"github.com/pharmatrack/orquestador/internal/orquestador/readiness"
	"github.com/pharmatrack/orquestador/internal/pkg/cache"
	"github.com/pharmatrack/orquestador/internal/pkg/httpclient"
	"github.com/pharmatrack/orquestador/internal/pkg/telemetry"
)

const shutdownTimeout = 10 * time.Second

func main() {
	telemetry.InitLogger()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		slog.Warn("tracer deshabilitado", "error", err)
	} else {
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				slog.Error("apagando el tracer", "error", err)
			}
		}()
	}

	catalogo := service.NewHTTPCatalogoService(httpclient.New("catalogo", cfg.CatalogoBaseURL, cfg.HTTPTimeout))
	inventario := service.NewHTTPInventarioService(httpclient.New("inventario", cfg.InventarioBaseURL, cfg.HTTPTimeout))
	recetas := service.NewHTTPRecetaService(httpclient.New("recetas", cfg.RecetasBaseURL, cfg.HTTPTimeout))

	sagaLog := openSagaLog(cfg.SagaDBPath)
	idem, reservas := buildCaches(cfg)

	coordinador := coordinator.New(recetas, inventario, sagaLog, idem, reservas,
		coordinator.WithIdempotencyTTL(cfg.IdempotencyTTL),
		coordinator.WithReservaTTL(cfg.ReservaTTL),
	)

	ready := readiness.New(
		readiness.Probe{Nombre: "catalogo", Check: catalogo.Health},
		readiness.Probe{Nombre: "inventario", Check: inventario.Health},
		readiness.Probe{Nombre: "recetas", Check: recetas.Health},
	)

	handler := httpx.NewHandler(coordinador, catalogo, inventario, ready)
	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpx.NewRouter(handler),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("orquestador escuchando", "addr", cfg.HTTPAddr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("señal de apagado recibida, drenando conexiones")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("servidor HTTP caído", "error", err)
			os.Exit(1)
		}
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		slog.Error("apagado forzado", "error", err)
	}
}

// openSagaLog opens the SQLite audit log, or disables it. The coordinator
// treats a nil repository as "skip logging", so a broken log never keeps the
// orchestrator from booting.
func openSagaLog(path string) sagalog.Repository {
	if path == "" {
		slog.Warn("saga log deshabilitado: SAGA_DB_PATH vacío")
		return nil
	}
	repo, err := sagasqlite.Open(path)
	if err != nil {
		slog.Error("no se pudo abrir el saga log, continuando sin él", "path", path, "error", err)
		return nil
	}
	return repo
}

// buildCaches returns the idempotency and reservation stores: Redis when an
// address is configured, process memory otherwise.
func buildCaches(cfg config.Config) (idem, reservas cache.Cache) {
	if cfg.RedisAddr != "" {
		slog.Info("cachés respaldadas por redis", "addr", cfg.RedisAddr)
		return cache.NewRedisCache(cfg.RedisAddr, cfg.ServiceName), cache.NewRedisCache(cfg.RedisAddr, cfg.ServiceName)
	}
	return cache.NewMemoryCache(cfg.ServiceName), cache.NewMemoryCache(cfg.ServiceName)
}
