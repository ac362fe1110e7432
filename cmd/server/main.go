// cmd/server/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/prospect-pipeline/internal/config"
	"github.com/unclebandit/prospect-pipeline/internal/controller"
	"github.com/unclebandit/prospect-pipeline/internal/db"
	"github.com/unclebandit/prospect-pipeline/internal/gateway"
	"github.com/unclebandit/prospect-pipeline/internal/handler"
	"github.com/unclebandit/prospect-pipeline/internal/logger"
	"github.com/unclebandit/prospect-pipeline/internal/metrics"
	"github.com/unclebandit/prospect-pipeline/internal/model"
	"github.com/unclebandit/prospect-pipeline/internal/redis"
	"github.com/unclebandit/prospect-pipeline/internal/registry"
	"github.com/unclebandit/prospect-pipeline/internal/repository"
	"github.com/unclebandit/prospect-pipeline/internal/scheduler"
	"github.com/unclebandit/prospect-pipeline/internal/service"
)

const serviceName = "prospect-server"

func main() {
	runOnce := flag.String("run", "", "run one job (capture, queue, dispatch, followup) and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{ServiceName: serviceName, Level: logger.ParseLevel(cfg.App.LogLevel)})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	if err := run(ctx, cfg, logg, *runOnce); err != nil {
		logg.Error(ctx, "server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "server shut down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, runOnce string) error {
	conn, err := db.Open(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(conn); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	loc := cfg.Location()
	repos := repository.New(conn)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	jobMetrics := metrics.NewJobMetrics(reg)
	dispatchMetrics := metrics.NewDispatchMetrics(reg)

	templates, err := service.NewTemplateService(cfg.App.TemplatesPath)
	if err != nil {
		return err
	}
	sender := gateway.New(cfg)
	notifier := service.NewAdminNotifier(sender, cfg.App.AdminPhone, logg)
	cnpja := registry.NewClient(cfg.CNPJA.BaseURL, cfg.CNPJA.APIKey, cfg.App.HTTPTimeout, registry.WithPageSize(cfg.Capture.PageSize))

	dispatcher := service.NewDispatcher(repos, sender, service.NewQuotaService(repos, loc), cfg.Dispatch, loc, logg)
	dispatcher.Recorder = dispatchMetrics
	pipeline := scheduler.Pipeline{
		Capture:  service.NewCaptureService(repos, cnpja, notifier, cfg.Capture, loc, logg),
		Queue:    service.NewQueueBuilder(repos, templates, cfg.Queue.Window, logg),
		Dispatch: dispatcher,
		Followup: service.NewFollowupScheduler(repos, templates, logg),
	}

	params := scheduler.Params{Logger: logg, Metrics: jobMetrics, Location: loc}
	if cfg.Redis.URL != "" {
		rc, err := redis.New(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer func() {
			if err := rc.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		params.Locks = func(job string) (scheduler.Lock, error) {
			return scheduler.NewRedisLock(rc, scheduler.LockKey(cfg.App.Env, job), cfg.Redis.LockTTL)
		}
	}
	sched, err := scheduler.New(params)
	if err != nil {
		return err
	}
	if err := scheduler.RegisterPipeline(sched, pipeline, cfg.Schedule, logg); err != nil {
		return err
	}

	if runOnce != "" {
		ran, err := sched.Trigger(ctx, runOnce)
		if err != nil {
			return err
		}
		if !ran {
			return errors.New("job " + runOnce + " is already running elsewhere")
		}
		return nil
	}

	recordStartup(ctx, repos, cfg, logg)

	optOuts := service.NewOptOutService(repos, logg)
	router := handler.NewRouter(
		handler.NewWebhookHandler(optOuts, logg),
		controller.NewAdminController(optOuts, repos.Events, logg),
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	)
	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logg.Info(logg.WithField(gctx, "addr", srv.Addr), "http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sched.Start()
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		httpErr := srv.Shutdown(shutdownCtx)
		if err := sched.Stop(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "scheduler did not stop in time", err)
		}
		return httpErr
	})
	return g.Wait()
}

func recordStartup(ctx context.Context, repos *repository.Repositories, cfg *config.Config, logg *logger.Logger) {
	payload, _ := json.Marshal(map[string]any{
		"env":         cfg.App.Env,
		"gateway":     cfg.Gateway.Provider,
		"daily_limit": cfg.Dispatch.DailyLimit,
		"timezone":    cfg.App.Timezone,
	})
	if err := repos.Events.Append(ctx, model.EventStartup, string(payload), time.Now()); err != nil {
		logg.Error(ctx, "failed to record startup event", err)
	}
}
