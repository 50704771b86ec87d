// Package main is the entry point for the roomplane orchestrator.
// It schedules every room's phase jobs, supervises the per-room transcoders and serves the
// admin API and HLS output.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roomplane/internal/admin"
	"roomplane/internal/announce"
	"roomplane/internal/config"
	"roomplane/internal/intake"
	"roomplane/internal/logger"
	"roomplane/internal/notify"
	"roomplane/internal/observability"
	"roomplane/internal/orchestrator"
	"roomplane/internal/playlist"
	"roomplane/internal/scheduler"
	"roomplane/internal/store/postgres"
	"roomplane/internal/stream"
	"roomplane/internal/stream/runtime"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const serviceName = "roomplane-orchestrator"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Parse flags
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	slogger := logger.New(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to Postgres
	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer db.Close()

	if *migrateFlag {
		log.Println("Running database migrations...")
		schema, err := postgres.Migrate(db.DB())
		if err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Printf("Migrations completed successfully (schema version %d)", schema)
	}

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, observability.TraceOptions{
		ServiceName: serviceName,
		Version:     version,
		Endpoint:    cfg.OTELEndpoint,
		SampleRatio: cfg.OTELSampleRatio,
	})
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics(ctx, serviceName)
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Printf("Failed to shutdown metrics: %v", err)
		}
	}()
	meter := otel.Meter(serviceName)
	inst, err := observability.NewInstruments(meter)
	if err != nil {
		log.Fatalf("Failed to create instruments: %v", err)
	}

	// Transcoder runtime
	var rt runtime.Runtime
	switch cfg.Stream.Runtime {
	case "docker":
		dockerRT, err := runtime.NewDockerRuntime()
		if err != nil {
			log.Fatalf("Failed to create Docker runtime: %v", err)
		}
		rt = dockerRT
		log.Printf("Using docker runtime (image: %s)", cfg.Stream.FFmpegImage)
	default:
		rt = runtime.NewExecRuntime(cfg.Stream.OutputDir)
		log.Printf("Using exec runtime (ffmpeg: %s)", cfg.Stream.FFmpegPath)
	}

	supervisor, err := stream.NewSupervisor(stream.Options{
		Runtime:          rt,
		FFmpegPath:       cfg.Stream.FFmpegPath,
		Image:            cfg.Stream.FFmpegImage,
		OutputDir:        cfg.Stream.OutputDir,
		AudioDir:         cfg.Playlist.AudioDir,
		ServeURL:         cfg.Stream.ServeURL,
		SegmentSeconds:   cfg.Stream.SegmentSeconds,
		PollInterval:     cfg.Stream.PollInterval,
		ReadyTimeout:     cfg.Stream.ReadyTimeout,
		MinManifestBytes: cfg.Stream.MinManifestBytes,
		StopGrace:        cfg.Stream.StopGrace,
		Logger:           slogger.With("component", "stream"),
	})
	if err != nil {
		log.Fatalf("Failed to create stream supervisor: %v", err)
	}

	// Playlist composer
	table, err := playlist.LoadTable(cfg.Playlist.SegmentTable, cfg.Playlist.SegmentVersion)
	if err != nil {
		log.Fatalf("Failed to load segment table: %v", err)
	}
	composer, err := playlist.New(cfg.Playlist.AudioDir, cfg.Stream.OutputDir, table, slogger.With("component", "playlist"))
	if err != nil {
		log.Fatalf("Failed to create playlist composer: %v", err)
	}
	log.Printf("Segment table version %s", composer.TableVersion())

	// Notifications
	var senders []notify.Sender
	if cfg.Notify.TwilioAccountSID != "" && cfg.Notify.TwilioAuthToken != "" {
		senders = append(senders, notify.NewWhatsAppSender(
			cfg.Notify.TwilioAccountSID, cfg.Notify.TwilioAuthToken, cfg.Notify.TwilioWhatsAppFrom,
			notify.WithHTTPClient(&http.Client{Timeout: cfg.Notify.SendTimeout}),
		))
	}
	if cfg.Notify.SMTPHost != "" && cfg.Notify.EmailFrom != "" {
		senders = append(senders, notify.NewEmailSender(
			cfg.Notify.SMTPHost, cfg.Notify.SMTPPort, cfg.Notify.SMTPUsername, cfg.Notify.SMTPPassword, cfg.Notify.EmailFrom,
			notify.WithSendTimeout(cfg.Notify.SendTimeout),
		))
	}
	dispatcher, err := notify.NewDispatcher(notify.Options{
		Subscribers:   db,
		Notifications: db,
		Senders:       senders,
		FrontendURL:   cfg.Notify.FrontendURL,
		Rate:          cfg.Notify.Rate,
		Instruments:   inst,
		Logger:        slogger.With("component", "notify"),
	})
	if err != nil {
		log.Fatalf("Failed to create notifier: %v", err)
	}
	log.Printf("Notification channels: %v", dispatcher.Channels())

	// Real-time announcements
	var announcer orchestrator.Announcer = announce.NewLogAnnouncer(slogger.With("component", "announce"))
	if cfg.RedisURL != "" {
		redisAnnouncer, client, err := announce.NewRedisAnnouncer(ctx, cfg.RedisURL, slogger.With("component", "announce"))
		if err != nil {
			log.Printf("Redis unavailable, room events will only be logged: %v", err)
		} else {
			defer client.Close()
			announcer = redisAnnouncer
		}
	}

	// Scheduler and orchestrator
	sched := scheduler.New(scheduler.Options{Logger: slogger.With("component", "scheduler")})
	orch, err := orchestrator.New(orchestrator.Config{
		Timing:           orchestrator.TimingFromConfig(cfg.Scheduler),
		RecoveryLookback: cfg.Scheduler.RecoveryLookback,
		RestartLiveDelay: cfg.Scheduler.RestartLiveDelay,
		UrgentBuildDelay: cfg.Scheduler.UrgentBuildDelay,
		PrivateRoomTTL:   cfg.Scheduler.PrivateRoomTTL,
		DefaultReciter:   cfg.Playlist.DefaultReciter,
	}, orchestrator.Deps{
		Rooms:       db,
		Scheduler:   sched,
		Builder:     composer,
		Streams:     supervisor,
		Notifier:    dispatcher,
		Announcer:   announcer,
		Instruments: inst,
		Logger:      slogger.With("component", "orchestrator"),
	})
	if err != nil {
		log.Fatalf("Failed to create orchestrator: %v", err)
	}

	registerGauges(meter, sched, supervisor)

	if err := sched.Every("expire_private_rooms", cfg.Scheduler.PrivateExpiryInterval, orch.ExpirePrivateRooms); err != nil {
		log.Fatalf("Failed to schedule private room expiry: %v", err)
	}

	// Recovery runs shortly after boot so the admin API and health checks are already up.
	err = sched.Schedule(scheduler.Job{
		Key:   "recovery",
		RunAt: time.Now().Add(cfg.Scheduler.RecoveryDelay),
		Action: func(ctx context.Context) error {
			_, err := orch.Recover(ctx)
			return err
		},
	})
	if err != nil {
		log.Fatalf("Failed to schedule recovery: %v", err)
	}

	// Room intake
	if cfg.AMQPURL != "" {
		consumer, err := intake.NewConsumer(intake.Options{
			URL:    cfg.AMQPURL,
			Queue:  cfg.AMQPQueue,
			Logger: slogger,
		}, orch)
		if err != nil {
			log.Fatalf("Failed to create intake consumer: %v", err)
		}
		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.Printf("Intake stopped: %v", err)
			}
		}()
	} else {
		log.Println("AMQP_URL not set, rooms are scheduled by recovery and the admin API only")
	}

	// Admin API
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := admin.New(admin.Options{
		Addr:      addr,
		AdminKey:  cfg.AdminAPIKey,
		HLSDir:    cfg.Stream.OutputDir,
		RateLimit: cfg.AdminRateLimit,
		RateBurst: cfg.AdminRateBurst,
		Metrics:   metricsHandler,
		Logger:    slogger.With("component", "admin"),
	}, orch, db)

	go func() {
		log.Printf("Roomplane orchestrator starting on %s", addr)
		if err := srv.Run(ctx); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down orchestrator...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	if err := sched.Shutdown(shutdownCtx); err != nil {
		log.Printf("Scheduler did not drain: %v", err)
	}
	supervisor.StopAll(shutdownCtx)
	log.Println("Orchestrator exited properly")
}

// registerGauges exposes scheduler and supervisor state, read only when scraped.
func registerGauges(meter metric.Meter, sched *scheduler.Scheduler, supervisor *stream.Supervisor) {
	_, err := meter.Int64ObservableGauge("scheduler.pending",
		metric.WithDescription("Registered scheduler jobs"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			obs.Observe(int64(sched.Len()))
			return nil
		}),
	)
	if err != nil {
		log.Printf("Failed to register pending jobs metric: %v", err)
	}

	_, err = meter.Int64ObservableGauge("streams.live",
		metric.WithDescription("Running transcoders"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			obs.Observe(int64(len(supervisor.Live())))
			return nil
		}),
	)
	if err != nil {
		log.Printf("Failed to register live streams metric: %v", err)
	}
}
