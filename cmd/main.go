package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"spotbook/internal/config"
	"spotbook/internal/factory"
	"spotbook/internal/logger"
	"spotbook/internal/metrics"
	"spotbook/internal/network"
	"spotbook/internal/oracle"
	"spotbook/internal/sdk"
	"spotbook/internal/sdk/spark"
	"spotbook/internal/sentio"
	"spotbook/internal/store"
	"spotbook/internal/tui"
	"spotbook/internal/wallet"
	"spotbook/internal/websocket"
)

func main() {
	// Parse command line flags
	var configPath = flag.String("config", "", "Path to a YAML config file")
	var market = flag.String("market", "", "Market to open at startup, e.g. BTC-USDC")
	var top = flag.Int("top", 0, "Price levels per side pushed to views")
	var pushInterval = flag.Duration("push-interval", 0, "Interval between view pushes")
	var terminal = flag.Bool("terminal", false, "Run the interactive terminal view")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Get().WithError(err).Fatal("failed to load configuration")
	}
	if *market != "" {
		cfg.SetDefaultMarket(*market)
	}
	if *top > 0 {
		cfg.SetDisplayTop(*top)
	}
	if *pushInterval > 0 {
		cfg.SetPushInterval(*pushInterval)
	}
	if *terminal {
		cfg.Display.Terminal = true
	}

	if err := logger.Configure(logger.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Quiet:      cfg.Display.Terminal,
	}); err != nil {
		logger.Get().WithError(err).Fatal("failed to configure logging")
	}
	log := logger.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.WithError(err).Fatal("spotbook stopped with error")
	}
	log.Info("All stores closed. Goodbye!")
}

func run(ctx context.Context, cfg config.Config) error {
	log := logger.WithComponent("main")

	bundle, err := config.LoadBundle()
	if err != nil {
		return err
	}

	m := metrics.New()
	httpClient := &http.Client{Timeout: cfg.Network.RequestTimeout}

	var signer *wallet.RemoteSigner
	var reader sdk.Reader
	if cfg.Network.SignerURL != "" {
		signer = wallet.NewRemoteSigner(cfg.Network.SignerURL, cfg.Network.WalletAddress, nil)
		reader = signer
	}

	markets := make([]string, 0, len(bundle.Markets()))
	for _, mk := range bundle.Markets() {
		markets = append(markets, mk.ContractID)
	}

	client, err := factory.NewNetwork(factory.NetworkConfig{
		Name: sdk.NetworkName(cfg.Network.Name),
		Spark: spark.Config{
			IndexerURL:         bundle.IndexerURL,
			IndexerWSURL:       bundle.IndexerWSURL,
			NetworkURL:         bundle.NetworkURL,
			OrderbookContract:  bundle.Contracts.Orderbook,
			MultiAssetContract: bundle.Contracts.MultiAsset,
			Markets:            markets,
			Reader:             reader,
			Sentio:             sentio.New(bundle.SentioURL, cfg.Network.SentioAPIKey, httpClient),
			HTTPClient:         httpClient,
			Metrics:            m,
		},
	})
	if err != nil {
		return err
	}

	log.WithField("indexer", bundle.IndexerWSURL).Info("connecting to indexer")
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()

	net, err := network.Init(bundle, client)
	if err != nil {
		return err
	}

	root := store.New(net, oracle.New(cfg.Network.HermesURL, httpClient), cfg.App, m)
	switch {
	case signer != nil:
		log.WithField("address", signer.Address()).Info("wallet connected through signer bridge")
		root.Connect(ctx, signer)
	case cfg.Network.WalletAddress != "":
		log.WithField("address", cfg.Network.WalletAddress).Info("wallet connected read-only")
		root.ConnectByAddress(ctx, cfg.Network.WalletAddress)
	}

	server := websocket.NewServer(root, websocket.Options{
		Port:                    cfg.Display.Port,
		PushInterval:            cfg.Display.PushInterval,
		Top:                     cfg.Display.Top,
		ClientMessagesPerSecond: cfg.Display.ClientMessagesPerSecond,
	}, m)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return root.Run(gctx) })
	g.Go(func() error { return server.Run(gctx) })
	if cfg.Display.Terminal {
		view := tui.New(root, tui.Options{Top: cfg.Display.Top, RefreshInterval: cfg.Display.PushInterval})
		g.Go(func() error {
			defer cancel()
			return view.Run(gctx)
		})
	}

	log.WithField("market", cfg.App.DefaultMarket).WithField("port", cfg.Display.Port).Info("spotbook started")

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
