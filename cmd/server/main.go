package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	gorillahandlers "github.com/gorilla/handlers"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Brownie44l1/farm-api/internal/config"
	"github.com/Brownie44l1/farm-api/internal/gateway"
	"github.com/Brownie44l1/farm-api/internal/handlers"
	"github.com/Brownie44l1/farm-api/internal/model"
)

const ErrExitCode = 1

func main() {
	if err := NewServerCmd().Execute(); err != nil {
		fmt.Println(err.Error())
		os.Exit(ErrExitCode)
	}
}

func NewServerCmd() *cobra.Command {
	var (
		configFile string
		verbosity  int
	)
	cmd := &cobra.Command{
		Use:   "farm-api",
		Short: "plant disease, weed and crop recommendation api",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.SetFlags(log.LstdFlags | log.Lshortfile)
			stdr.SetVerbosity(verbosity)
			ctx = logr.NewContext(ctx, stdr.NewWithOptions(log.Default(), stdr.Options{LogCaller: stdr.Error}))

			options, err := config.Resolve(configFile, cmd.Flags(), os.LookupEnv)
			if err != nil {
				return err
			}
			return Run(ctx, options)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "yaml config file")
	flags.IntVarP(&verbosity, "verbose", "v", 0, "log verbosity")
	// Values are collected again by config.Resolve so that explicit flags win
	// over the config file.
	config.BindFlags(flags, config.DefaultOptions())
	return cmd
}

func Run(ctx context.Context, opts *config.Options) error {
	log := logr.FromContextOrDiscard(ctx)

	// Without a runtime every model slot stays empty; the data routes still work.
	if err := model.InitRuntime(opts.OnnxRuntime); err != nil {
		log.Error(err, "onnxruntime unavailable", "library", opts.OnnxRuntime)
	} else {
		defer model.DestroyRuntime()
	}

	loadOptions := opts.LoadOptions()
	if opts.UsesS3() {
		fetcher, err := model.NewS3Fetcher(ctx, *opts.S3)
		if err != nil {
			return err
		}
		loadOptions.Fetcher = fetcher
	}
	registry, err := model.Load(ctx, loadOptions)
	if err != nil {
		return err
	}
	defer registry.Close()
	log.Info("models loaded", "status", registry.Status(), "regions", len(registry.Regions()))

	if opts.Market.APIKey == "" {
		log.Info("no market api key configured, /get_market_prices will fail", "env", config.EnvPrefix+"MARKET_API_KEY")
	}
	h := handlers.NewHandler(
		registry,
		gateway.NewWeatherClient(opts.Weather.URL, opts.Weather.Timeout.Duration),
		gateway.NewMarketClient(opts.MarketOptions()),
		handlers.Options{
			UploadDir:      opts.UploadDir,
			StaticDir:      opts.StaticDir,
			MaxUploadBytes: opts.MaxUploadBytes,
		},
	)

	cors := gorillahandlers.CORS(
		gorillahandlers.AllowedOrigins(opts.CORSOrigins),
		gorillahandlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		gorillahandlers.AllowedHeaders([]string{"Content-Type"}),
	)
	server := http.Server{
		Addr:    opts.Listen,
		Handler: gorillahandlers.CombinedLoggingHandler(os.Stdout, cors(h.Routes())),
		BaseContext: func(l net.Listener) context.Context {
			return ctx
		},
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	eg.Go(func() error {
		log.Info("farm-api listening", "addr", opts.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	return eg.Wait()
}
