package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/cepro/hems-controller/config"
	"github.com/cepro/hems-controller/internal/bus"
	"github.com/cepro/hems-controller/internal/coreapi"
	"github.com/cepro/hems-controller/internal/devicemodel"
	"github.com/cepro/hems-controller/internal/dispatcher"
	"github.com/cepro/hems-controller/internal/notify"
	"github.com/cepro/hems-controller/internal/planner"
	"github.com/cepro/hems-controller/internal/rtl"
	"github.com/cepro/hems-controller/internal/thermalmodel"
	"github.com/cepro/hems-controller/internal/tsdbwriter"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	var configFilePath string
	flag.StringVar(&configFilePath, "f", "./config.json", "Specify config file path")
	flag.Parse()

	slog.Info("Starting", "config_file", configFilePath)

	cfg, err := config.Read(configFilePath)
	if err != nil {
		slog.Error("Failed to read config", "error", err)
		os.Exit(1)
	}
	if level, ok := parseLogLevel(cfg.LogLevel); ok {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	}

	ctx, cancel := context.WithCancel(context.Background())

	coreClient := coreapi.New(cfg.CoreAPI.BaseURL, coreAPIHTTPClient(cfg.CoreAPI), logger)

	devices, err := loadDevices(ctx, coreClient)
	if err != nil {
		slog.Error("Failed to load device inventory", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded device inventory", "count", len(devices))

	messageBus := bus.New(cfg.Bus.Brokers, cfg.Bus.GroupID, logger)
	notifier := notify.NewBusPublisher(messageBus.PublishNotification, logger)

	store, err := tsdbwriter.NewStore(cfg.TSDB.LocalPath)
	if err != nil {
		slog.Error("Failed to open local tsdb buffer", "error", err)
		os.Exit(1)
	}

	remote, err := remoteTSDBClient(cfg.TSDB, logger)
	if err != nil {
		slog.Error("Failed to configure remote tsdb client", "error", err)
		os.Exit(1)
	}
	writer := tsdbwriter.NewWriter(store, remote, logger)

	thermalMgr := thermalmodel.NewManager(
		cfg.ThermalModel.Path,
		cfg.ThermalModelTTL(),
		cfg.ThermalModel.Zones,
		cfg.ThermalModel.Heaters,
		cfg.ThermalModel.WeatherDims,
		logger,
	)
	historyFetcher := dispatcher.NewHistoryFetcher(coreClient, devices)

	mpp := planner.New(devices, planner.NewCoreAPISource(coreClient), logger)

	rtlOpts := rtl.Options{
		TickPeriod:         cfg.RTL.TickPeriod(),
		SafetyMarginW:      cfg.RTL.SafetyMarginW(),
		AntiReboundDefault: cfg.RTL.AntiReboundDefault(),
		AntiReboundBattery: cfg.RTL.AntiReboundBattery(),
	}

	disp := dispatcher.New(dispatcher.Config{
		Planner:        mpp,
		Devices:        devices,
		Poster:         coreClient,
		Writer:         writer,
		RTLCore:        coreClient,
		Notifier:       notifier,
		RTLOpts:        rtlOpts,
		Priority:       cfg.MPCPriority,
		Logger:         logger,
		ThermalModel:   thermalMgr,
		HistoryFetcher: historyFetcher,
	})

	busErrs := make(chan error, 1)
	go func() {
		busErrs <- messageBus.Run(ctx, disp.Handle)
	}()

	// wait for a ctrl-c interrupt, or a fatal bus error, before exiting
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	select {
	case <-signalChan:
	case err := <-busErrs:
		if err != nil && ctx.Err() == nil {
			slog.Error("Message bus stopped unexpectedly", "error", err)
		}
	}

	// cancel any open go-routines and give them up to 100ms to gracefully shutdown
	cancel()
	time.Sleep(time.Millisecond * 100)

	slog.Info("Exiting")
	os.Exit(0)
}

// loadDevices fetches the Core API's device inventory and decodes it into
// the typed devicemodel.Device records every other component operates on.
func loadDevices(ctx context.Context, client *coreapi.Client) ([]devicemodel.Device, error) {
	configs, err := client.Devices(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch device inventory: %w", err)
	}
	return dispatcher.BuildDevices(configs)
}

// coreAPIHTTPClient builds the *http.Client used for Core API requests,
// attaching a bearer token transport when one is configured.
func coreAPIHTTPClient(cfg config.CoreAPIConfig) *http.Client {
	client := &http.Client{Timeout: 10 * time.Second}
	if cfg.TokenEnvVar == "" {
		return client
	}
	token, ok := os.LookupEnv(cfg.TokenEnvVar)
	if !ok {
		slog.Warn("Environment variable not found, Core API requests will be unauthenticated", "env_var", cfg.TokenEnvVar)
		return client
	}
	client.Transport = bearerTokenTransport{token: token, base: http.DefaultTransport}
	return client
}

type bearerTokenTransport struct {
	token string
	base  http.RoundTripper
}

func (t bearerTokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(req)
}

// remoteTSDBClient builds the remote Postgrest-fronted tsdbwriter client,
// reading its credentials from the environment variables named in cfg.
func remoteTSDBClient(cfg config.TSDBConfig, logger *slog.Logger) (*tsdbwriter.RemoteClient, error) {
	if cfg.RemoteURL == "" {
		return nil, fmt.Errorf("tsdb.remoteUrl must be configured")
	}
	anonKey, ok := os.LookupEnv(cfg.AnonKeyEnvVar)
	if !ok {
		return nil, fmt.Errorf("environment variable %q not found", cfg.AnonKeyEnvVar)
	}
	userKey, ok := os.LookupEnv(cfg.UserKeyEnvVar)
	if !ok {
		return nil, fmt.Errorf("environment variable %q not found", cfg.UserKeyEnvVar)
	}
	return tsdbwriter.NewRemoteClient(cfg.RemoteURL, anonKey, userKey, cfg.RemoteSchema, cfg.RemoteTable, logger), nil
}

// parseLogLevel maps the config file's LOGLEVEL values onto slog's levels.
func parseLogLevel(s string) (slog.Level, bool) {
	switch s {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARN":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
