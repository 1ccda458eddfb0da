package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jmerrifield20/propchain/internal/api"
	"github.com/jmerrifield20/propchain/internal/health"
	"github.com/jmerrifield20/propchain/internal/marketplace"
	"github.com/jmerrifield20/propchain/internal/metrics"
	"github.com/jmerrifield20/propchain/internal/notify"
)

var serveSeed bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the marketplace read API over HTTP",
	Long: `serve exposes listings, reviews, events and statistics as JSON under
/api/v1, with /healthz and Prometheus /metrics alongside.

With --simulate --seed the in-memory ledger is populated with demo listings
before the server starts.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(new(int), "port", 0, "HTTP port (overrides server.port)")
	serveCmd.Flags().BoolVar(&serveSeed, "seed", false, "Populate the simulated ledger with demo data")
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveSeed && !simulate {
		return errors.New("--seed requires --simulate")
	}
	serving = true

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	if serveSeed {
		if err := seedDemo(ctx, a.svc, logger); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	if err := a.journal.Verify(ctx); err != nil {
		logger.Warn("settlement journal integrity check FAILED", zap.Error(err))
	} else {
		n, _ := a.journal.Len(ctx)
		root, _ := a.journal.Root(ctx)
		logger.Info("settlement journal verified", zap.Int("entries", n), zap.String("root", root))
	}

	// Warm the snapshot; a failure here is retried by the health probe.
	if snap, err := a.svc.Cache().RefreshAll(ctx); err != nil {
		logger.Warn("initial refresh failed (non-fatal)", zap.Error(err))
	} else {
		logger.Info("snapshot loaded", zap.Int("listings", snap.Len()))
	}

	checker := health.New(func(ctx context.Context) error {
		_, err := a.svc.Cache().RefreshAll(ctx)
		return err
	}, health.Config{
		CheckInterval: viper.GetDuration("health.check_interval"),
		ProbeTimeout:  viper.GetDuration("health.probe_timeout"),
		FailThreshold: viper.GetInt("health.fail_threshold"),
	}, logger)
	checker.SetMetricsRecord(func(ok bool) {
		metrics.RecordLedgerProbe(ok)
		metrics.SetLedgerHealthy(checker.Report().Healthy())
	})
	if a.publisher != nil {
		subject := notify.Subject(viper.GetString("nats.subject_prefix"), "ledger_health")
		checker.SetTransitionHook(func(ctx context.Context, r health.Report) {
			if err := a.publisher.Publish(ctx, subject, r); err != nil {
				logger.Warn("ledger health notification failed (non-fatal)", zap.Error(err))
			}
		})
	}
	go checker.Start(ctx)

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(ctx, a.svc, api.Options{
		CORSOrigins:  viper.GetStringSlice("server.cors_origins"),
		RateLimitRPS: viper.GetInt("server.rate_limit_rps"),
		Journal:      a.journal,
		Health:       checker,
	}, logger)

	port := viper.GetInt("server.port")
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("propchain API listening", zap.Int("port", port), zap.Bool("simulated", simulate))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}
	logger.Info("shutting down propchain API...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	return nil
}

// demoListings populate a simulated ledger for local development.
var demoListings = []struct {
	input marketplace.ListingInput
	price string
}{
	{
		input: marketplace.ListingInput{
			Title:       "Sea View Villa",
			Category:    "Villa",
			Image:       "https://images.example.com/villa.jpg",
			Address:     "1 Harbour Road, Brighton",
			Description: "Four bedrooms facing the sea with a private terrace.",
		},
		price: "12.5",
	},
	{
		input: marketplace.ListingInput{
			Title:       "Canal Loft",
			Category:    "Loft",
			Image:       "https://images.example.com/loft.jpg",
			Address:     "88 Wharf Street, Manchester",
			Description: "Converted warehouse loft with exposed brick and canal views.",
		},
		price: "3.2",
	},
	{
		input: marketplace.ListingInput{
			Title:       "Highland Cabin",
			Category:    "Cabin",
			Address:     "Glen Affric, Inverness-shire",
			Description: "Timber cabin by the loch, off grid with solar power.",
		},
		price: "0.85",
	},
}

var demoReviews = []struct {
	listing uint64
	rating  int
	comment string
}{
	{1, 5, "Stunning views, worth every wei."},
	{2, 4, "Great light, a little noisy at weekends."},
	{3, 3, "Beautiful spot but a long drive."},
}

// seedDemo lists the demo properties and reviews them as the connected
// account.
func seedDemo(ctx context.Context, svc *marketplace.Service, logger *zap.Logger) error {
	for _, d := range demoListings {
		if _, err := svc.CreateListing(ctx, d.input, d.price); err != nil {
			return fmt.Errorf("list %q: %w", d.input.Title, err)
		}
	}
	for _, r := range demoReviews {
		if _, err := svc.AddReview(ctx, r.listing, r.rating, r.comment); err != nil {
			return fmt.Errorf("review %d: %w", r.listing, err)
		}
	}
	logger.Info("simulated ledger seeded",
		zap.Int("listings", len(demoListings)),
		zap.Int("reviews", len(demoReviews)),
	)
	return nil
}
