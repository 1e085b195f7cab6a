package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/moisturizer/internal/config"
	"github.com/alfredjeanlab/moisturizer/internal/events"
	"github.com/alfredjeanlab/moisturizer/internal/ingest"
	"github.com/alfredjeanlab/moisturizer/internal/server"
	moistsync "github.com/alfredjeanlab/moisturizer/internal/sync"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the moisturizer HTTP and gRPC servers",
	GroupID: "system",
	// Override PersistentPreRunE so we don't build an API client.
	PersistentPreRunE: localOnly,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		slog.SetDefault(logger)

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		st, backend, err := openStore(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		logger.Info("store opened", "backend", backend)

		var publisher events.Publisher
		var subscriber *events.NATSSubscriber
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				st.Close()
				return err
			}
			publisher = pub
			sub, err := events.NewNATSSubscriber(cfg.NATSURL)
			if err != nil {
				pub.Close()
				st.Close()
				return err
			}
			subscriber = sub.WithLogger(logger)
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (MOIST_NATS_URL not set)")
		}

		srv := server.New(st, publisher, server.Config{
			AuthToken:    cfg.AuthToken,
			AdminID:      cfg.AdminID,
			MaxRedirects: cfg.MaxRedirects,
			MaxBodyBytes: cfg.MaxBodyBytes,
			Schema:       cfg.Schema,
		})
		if err := srv.Bootstrap(cmd.Context(), cfg.AdminPassword); err != nil {
			publisher.Close()
			st.Close()
			return err
		}

		// Other replicas announce schema changes on the bus; drop their
		// cached models and run the ingest consumer in the shared queue.
		var stops []func()
		if subscriber != nil {
			stop, err := srv.Registry().WatchInvalidations(subscriber)
			if err != nil {
				logger.Error("failed to watch type invalidations", "error", err)
			} else {
				stops = append(stops, stop)
			}
			stop, err = ingest.New(srv.Registry(), srv.Publisher()).Start(subscriber, cfg.IngestSubject)
			if err != nil {
				logger.Error("failed to start ingest consumer", "error", err)
			} else {
				stops = append(stops, stop)
			}
		}

		grpcServer := server.NewGRPCServer(srv)
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			publisher.Close()
			st.Close()
			return err
		}

		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "error", err)
			}
		}()

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           srv.NewHTTPHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "error", err)
			}
		}()

		scheduler := startSync(cfg, srv, logger)

		logger.Info("moisturizer started",
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
			"read_only", cfg.Schema.ReadOnly,
			"immutable_schema", cfg.Schema.ImmutableSchema,
			"strict_schema", cfg.Schema.StrictSchema,
		)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		for _, stop := range stops {
			stop()
		}
		if scheduler != nil {
			scheduler.Stop()
			logger.Info("sync scheduler stopped")
		}

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		logger.Info("HTTP server stopped")

		if subscriber != nil {
			subscriber.Close()
		}
		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "error", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "error", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

// startSync starts the backup scheduler when an interval and at least one
// destination are configured.
func startSync(cfg *config.Config, srv *server.Server, logger *slog.Logger) *moistsync.Scheduler {
	if cfg.SyncInterval <= 0 {
		return nil
	}
	var dests []moistsync.Destination

	if cfg.SyncS3Bucket != "" {
		s3Dest, err := moistsync.NewS3Destination(context.Background(), moistsync.S3Options{
			Bucket:   cfg.SyncS3Bucket,
			Key:      cfg.SyncS3Key,
			Region:   cfg.SyncS3Region,
			Endpoint: cfg.SyncS3Endpoint,
		})
		if err != nil {
			logger.Error("failed to create S3 sync destination", "error", err)
		} else {
			dests = append(dests, s3Dest)
			logger.Info("sync S3 destination enabled", "bucket", cfg.SyncS3Bucket, "key", cfg.SyncS3Key)
		}
	}

	if cfg.SyncGitRepo != "" {
		dests = append(dests, moistsync.NewGitDestination(cfg.SyncGitRepo, cfg.SyncGitPath, cfg.SyncGitBranch))
		logger.Info("sync git destination enabled", "repo", cfg.SyncGitRepo, "path", cfg.SyncGitPath)
	}

	if len(dests) == 0 {
		return nil
	}
	scheduler := moistsync.NewScheduler(srv.Registry(), dests, cfg.SyncInterval, logger)
	scheduler.Start()
	logger.Info("sync scheduler started", "interval", cfg.SyncInterval)
	return scheduler
}
