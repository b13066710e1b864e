// Command boxarb is the operator's single-binary CLI: it wires the
// venue clients, discovery loop, coordinator, arb engine, position
// reconciler and settlement tracker together and drives them from a
// chosen subcommand. There is no HTTP server and no UI; the reference's
// cmd/server/main.go wired one HTTP-serving binary, this wires a
// subcommand dispatcher instead since this spec has no UI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/btcarb/boxarb/internal/config"
	"github.com/btcarb/boxarb/internal/coordinator"
	"github.com/btcarb/boxarb/internal/discovery"
	"github.com/btcarb/boxarb/internal/engine"
	"github.com/btcarb/boxarb/internal/execution"
	"github.com/btcarb/boxarb/internal/interval"
	"github.com/btcarb/boxarb/internal/journal"
	"github.com/btcarb/boxarb/internal/mapping"
	"github.com/btcarb/boxarb/internal/position"
	"github.com/btcarb/boxarb/internal/quote"
	"github.com/btcarb/boxarb/internal/settlement"
	"github.com/btcarb/boxarb/internal/venue"
	"github.com/btcarb/boxarb/internal/venue/auth"
	"github.com/btcarb/boxarb/internal/venue/clob"
	"github.com/btcarb/boxarb/internal/venue/onchain"
	"github.com/btcarb/boxarb/internal/venue/restclient"
	"github.com/btcarb/boxarb/pkg/telemetry"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage())
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "boxarb: config: %v\n", err)
		os.Exit(1)
	}

	switch cmd {
	case "run":
		cfg.DryRun = false
	case "dry-run":
		cfg.DryRun = true
	}

	log, err := telemetry.New(telemetry.Config(cfg.Logging))
	if err != nil {
		fmt.Fprintf(os.Stderr, "boxarb: logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var runErr error
	switch cmd {
	case "run", "dry-run":
		runErr = runTrading(ctx, cfg, log)
	case "discover":
		runErr = runDiscoverOnce(ctx, cfg, log)
	case "discover:watch":
		runErr = runDiscoverWatch(ctx, cfg, log)
	case "check-positions":
		runErr = runCheckPositions(ctx, cfg, log)
	case "sell-all-positions":
		runErr = runSellAllPositions(ctx, cfg, log)
	case "sell-position":
		runErr = runSellPosition(ctx, cfg, log, args)
	default:
		fmt.Fprintln(os.Stderr, usage())
		os.Exit(1)
	}

	if runErr != nil {
		var authErr *auth.AuthFailedError
		if errors.As(runErr, &authErr) {
			log.Fatal("fatal authentication failure at startup", zap.String("venue", authErr.Venue), zap.Error(runErr))
		}
		log.Error("exited with error", zap.Error(runErr))
		os.Exit(1)
	}
}

func usage() string {
	return "usage: boxarb <run|dry-run|discover|discover:watch|check-positions|sell-all-positions|sell-position> [args]"
}

// deployment bundles every long-lived component runTrading wires
// together, so the other subcommands can build a narrower slice of
// the same graph without repeating the venue/client plumbing.
type deployment struct {
	cfg       *config.Config
	log       *zap.Logger
	clock     *interval.Clock
	store     *mapping.Store
	clients   map[quote.Venue]venue.Client
	clobRest  *restclient.ClobREST
	onchainR  *restclient.OnchainREST
	tracker   *position.Tracker
	state     *execution.State
}

func buildDeployment(cfg *config.Config, log *zap.Logger) (*deployment, error) {
	httpClient := restclient.NewHTTPClient(restclient.DefaultConfig())

	d := &deployment{
		cfg:     cfg,
		log:     log,
		clock:   interval.New(nil),
		store:   mapping.NewStore(24 * time.Hour),
		clients: make(map[quote.Venue]venue.Client),
		tracker: position.NewTracker(),
		state:   execution.NewState(time.Now(), money(cfg.Risk.MaxDailyLoss), money(cfg.Risk.MaxNotional)),
	}

	// Real venue clients (for market data) are built whenever
	// credentials are configured, independent of DryRun: DryRun only
	// controls whether the execution committer actually dispatches
	// orders, not whether it can see live quotes.
	if cfg.Venues.Clob.PrivateKeyPath != "" && cfg.Venues.Clob.APIKeyID != "" {
		privKey, err := auth.LoadRSAPrivateKey(cfg.Venues.Clob.PrivateKeyPath)
		if err != nil {
			return nil, auth.ErrAuthFailed("clob", err)
		}
		d.clobRest = restclient.NewClobREST(cfg.Venues.Clob.RESTBaseURL, cfg.Venues.Clob.APIKeyID, privKey, httpClient)
		clobClient := clob.NewClient("clob", cfg.Venues.Clob.WSURL, privKey, d.clobRest, log)
		d.clients[quote.VenueClob] = clobClient
	}

	if cfg.Venues.Onchain.SignerPrivateKeyHex != "" && cfg.Venues.Onchain.FunderAddress != "" {
		signer, err := auth.NewOnchainSigner(cfg.Venues.Onchain.SignerPrivateKeyHex, cfg.Venues.Onchain.FunderAddress, cfg.Venues.Onchain.ChainID)
		if err != nil {
			return nil, auth.ErrAuthFailed("onchain", err)
		}
		signer.SetCredentials(auth.L2Creds{
			APIKey:     cfg.Venues.Onchain.L2APIKey,
			Secret:     cfg.Venues.Onchain.L2Secret,
			Passphrase: cfg.Venues.Onchain.L2Passphrase,
		})
		d.onchainR = restclient.NewOnchainREST(cfg.Venues.Onchain.RESTBaseURL, signer, httpClient)
		onchainClient := onchain.NewClient("onchain", cfg.Venues.Onchain.WSURL, signer, d.onchainR, log)
		d.clients[quote.VenueOnchain] = onchainClient
	}

	if !cfg.DryRun && (d.clients[quote.VenueClob] == nil || d.clients[quote.VenueOnchain] == nil) {
		return nil, fmt.Errorf("boxarb: live mode requires both venues' credentials configured")
	}

	return d, nil
}

// money converts a dollars-denominated risk config field to Cents,
// matching pkg/money's fixed-point convention.
func money(dollars float64) int64 {
	return int64(dollars*10000 + 0.5)
}

func (d *deployment) clobResolver() discovery.ClobResolver {
	return discovery.TickerResolver{SeriesTicker: d.cfg.Venues.Clob.SeriesTicker}
}

func (d *deployment) onchainResolver() discovery.OnchainResolver {
	if d.onchainR == nil {
		// Dry-run without live credentials: no REST collaborator to list
		// markets through, so every onchain interval is left unresolved.
		return discovery.RESTListResolver{List: func(ctx context.Context) ([]discovery.OpenMarket, error) {
			return nil, fmt.Errorf("boxarb: onchain discovery unavailable in dry-run without credentials")
		}}
	}
	return discovery.RESTListResolver{List: d.onchainR.ListOpenMarkets}
}

func runTrading(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	d, err := buildDeployment(cfg, log)
	if err != nil {
		return err
	}

	disc := discovery.New(discovery.DefaultConfig(), d.clobResolver(), d.onchainResolver(), d.store, d.clock, log)
	go disc.Run(ctx)

	ej, err := journal.NewExecutionJournal(cfg.Journal.ExecutionsPath)
	if err != nil {
		return fmt.Errorf("boxarb: open execution journal: %w", err)
	}
	defer ej.Close()

	sj, err := journal.NewSettlementJournal(cfg.Journal.SettlementsPath)
	if err != nil {
		return fmt.Errorf("boxarb: open settlement journal: %w", err)
	}
	defer sj.Close()

	clobResolutionFetcher := settlement.ResolutionFetcher(func(ctx context.Context, key interval.Key) (settlement.Resolution, error) {
		m, ok := d.store.Get(key)
		if !ok || m.ClobMarketID == "" || d.clobRest == nil {
			return settlement.ResolutionUnknown, fmt.Errorf("boxarb: no clob market resolved for %s", key)
		}
		res, err := d.clobRest.GetResolution(ctx, m.ClobMarketID)
		if err != nil {
			return settlement.ResolutionUnknown, err
		}
		return parseResolution(res), nil
	})
	onchainResolutionFetcher := settlement.ResolutionFetcher(func(ctx context.Context, key interval.Key) (settlement.Resolution, error) {
		m, ok := d.store.Get(key)
		if !ok || m.OnchainMarketID == "" || d.onchainR == nil {
			return settlement.ResolutionUnknown, fmt.Errorf("boxarb: no onchain market resolved for %s", key)
		}
		res, err := d.onchainR.GetResolution(ctx, m.OnchainMarketID)
		if err != nil {
			return settlement.ResolutionUnknown, err
		}
		return parseResolution(res), nil
	})
	settleTracker := settlement.NewTracker(settlement.DefaultConfig(), clobResolutionFetcher, onchainResolutionFetcher, sj, log)

	var coord *coordinator.Coordinator
	d.clock.OnRollover(func(prev, next interval.Key) {
		clobQ, _ := coord.GetQuote(quote.VenueClob)
		onchainQ, _ := coord.GetQuote(quote.VenueOnchain)
		settleTracker.ScheduleChecks(ctx, settlement.IntervalCloseSnapshot{
			Key:             prev,
			ClobRefPrice:    midPrice(clobQ),
			OnchainRefPrice: midPrice(onchainQ),
			CapturedAt:      time.Now(),
		})
	})

	execCfg := execution.Config{
		MaxLegDelayMs:        cfg.Risk.MaxLegDelayMs,
		UnwindSteps:          cfg.Risk.UnwindLadderSteps,
		UnwindStepSize:       cfg.Risk.UnwindLadderStepSize,
		UnwindStepTimeoutMs:  cfg.Risk.UnwindLadderStepTimeoutMs,
		UnwindMaxTotalTimeMs: cfg.Risk.UnwindMaxTotalTimeMs,
		CooldownMsAfterFail:  cfg.Risk.CooldownMsAfterFailure,
		CooldownMsAfterOK:    cfg.Risk.CooldownMsAfterSuccess,
	}
	execEngine := execution.NewEngine(execCfg, d.state, log)

	var clients execution.Clients
	if !cfg.DryRun {
		clients = execution.Clients(d.clients)
	}

	coord = coordinator.New(d.clients, d.store, d.clock, d.tracker, d.state, engine.CancelOrdersForMarket(clients, d.tracker), log)

	reconciler := position.NewReconciler(position.DefaultConfig(), d.tracker, d.state, remoteFetcher(d), correctiveOrderer(clients), func() (quote.Normalized, bool) {
		return coord.GetQuote(quote.VenueClob)
	}, log)

	eng := engine.New(engine.Config{
		SlippageBuffer:      cfg.Risk.SlippageBufferPerLeg,
		MinEdgeNet:          cfg.Risk.MinEdgeNet,
		MinSize:             1,
		MaxQtyPerTrade:      cfg.Risk.MaxQtyPerTrade,
		MaxOpenOrders:       10,
		BalanceTol:          1,
		RolloverCutoff:      cfg.Risk.NoNewPositionsCutoffMs,
		CooldownMsAfterFail: cfg.Risk.CooldownMsAfterFailure,
	}, coord, execEngine, d.state, d.tracker, clients, d.clock, ej, log)

	go d.clock.Run(ctx.Done())
	go reconciler.Run(ctx, []quote.Venue{quote.VenueClob, quote.VenueOnchain})
	go eng.Run(ctx)

	log.Info("boxarb started", zap.Bool("dry_run", cfg.DryRun))
	if err := coord.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	shutdownGracefully(d, clients, log)
	log.Info("boxarb shut down cleanly")
	return nil
}

// shutdownGracefully runs once coord.Start returns on SIGINT/SIGTERM: it
// cancels every order this process still believes is resting on either
// venue, then logs a position snapshot and warns loudly if the two
// sides don't net to zero against each other, since an operator needs
// to know to sell out manually rather than assume the box closed clean.
func shutdownGracefully(d *deployment, clients execution.Clients, log *zap.Logger) {
	cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, o := range d.tracker.AllOpenOrders() {
		client, ok := clients[o.Venue]
		if !ok || client == nil {
			continue
		}
		if err := client.CancelOrder(cancelCtx, o.ClientOrderID); err != nil {
			log.Warn("failed to cancel open order at shutdown",
				zap.String("client_order_id", o.ClientOrderID), zap.String("venue", string(o.Venue)), zap.Error(err))
			continue
		}
		d.tracker.RemoveOpenOrder(o.ClientOrderID)
	}

	for _, v := range []quote.Venue{quote.VenueClob, quote.VenueOnchain} {
		for _, s := range []quote.Side{quote.SideYes, quote.SideNo} {
			log.Info("position snapshot at shutdown",
				zap.String("venue", string(v)), zap.String("side", string(s)), zap.Float64("qty", d.tracker.Net(v, s)))
		}
	}

	totalYes, totalNo := d.tracker.TotalYes(), d.tracker.TotalNo()
	if math.Abs(totalYes-totalNo) > 1e-6 {
		log.Warn("position snapshot imbalanced at shutdown, manual liquidation may be required",
			zap.Float64("total_yes", totalYes), zap.Float64("total_no", totalNo))
	}
}

func midPrice(q quote.Normalized) float64 {
	if q.YesBid == 0 && q.YesAsk == 0 {
		return 0
	}
	return (q.YesBid + q.YesAsk) / 2
}

func parseResolution(s string) settlement.Resolution {
	switch s {
	case "up":
		return settlement.ResolutionUp
	case "down":
		return settlement.ResolutionDown
	default:
		return settlement.ResolutionUnknown
	}
}

func remoteFetcher(d *deployment) position.RemoteFetcher {
	return func(ctx context.Context, v quote.Venue, s quote.Side) (float64, error) {
		m, ok := d.store.Get(d.clock.Current())
		if !ok {
			return 0, fmt.Errorf("boxarb: no interval mapping for current interval yet")
		}
		switch v {
		case quote.VenueClob:
			if d.clobRest == nil || m.ClobMarketID == "" {
				return 0, fmt.Errorf("boxarb: clob REST client or market not available")
			}
			return d.clobRest.GetPosition(ctx, m.ClobMarketID, string(s))
		case quote.VenueOnchain:
			if d.onchainR == nil || m.OnchainMarketID == "" {
				return 0, fmt.Errorf("boxarb: onchain REST client or market not available")
			}
			return d.onchainR.GetPosition(ctx, m.OnchainMarketID, string(s))
		default:
			return 0, fmt.Errorf("boxarb: unknown venue %s", v)
		}
	}
}

// flattenSide returns the order side that closes a held position on s
// by auto-netting against it (long YES flattens by buying NO and vice
// versa), the same side-flip the committer's unwind uses.
func flattenSide(s quote.Side) venue.OrderSide {
	if s == quote.SideYes {
		return venue.OrderBuyNo
	}
	return venue.OrderBuyYes
}

func correctiveOrderer(clients execution.Clients) position.CorrectiveOrderer {
	return func(ctx context.Context, v quote.Venue, s quote.Side, price, qty float64) error {
		client, ok := clients[v]
		if !ok || client == nil {
			return fmt.Errorf("boxarb: no client for venue %s to place corrective order", v)
		}
		side := venue.OrderBuyYes
		if s == quote.SideNo {
			side = venue.OrderBuyNo
		}
		_, err := client.PlaceOrder(ctx, venue.OrderRequest{
			ClientOrderID: fmt.Sprintf("corrective-%d", time.Now().UnixNano()),
			Side:          side,
			LimitPrice:    price,
			Qty:           qty,
			TimeInForce:   "IOC",
		})
		return err
	}
}

func runDiscoverOnce(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	d, err := buildDeployment(cfg, log)
	if err != nil {
		return err
	}
	disc := discovery.New(discovery.DefaultConfig(), d.clobResolver(), d.onchainResolver(), d.store, d.clock, log)
	go disc.Run(ctx)

	timeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for _, key := range []interval.Key{d.clock.Current(), d.clock.Next()} {
		waitForMapping(timeout, d.store, key)
		m, _ := d.store.Get(key)
		log.Info("resolved interval mapping", zap.String("interval", key.String()), zap.String("clob", m.ClobMarketID), zap.String("onchain", m.OnchainMarketID))
	}
	return nil
}

func runDiscoverWatch(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	d, err := buildDeployment(cfg, log)
	if err != nil {
		return err
	}
	disc := discovery.New(discovery.DefaultConfig(), d.clobResolver(), d.onchainResolver(), d.store, d.clock, log)
	go d.clock.Run(ctx.Done())
	go disc.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-disc.Events():
			log.Info("discovery event", zap.Int("type", int(ev.Type)), zap.String("venue", ev.Venue), zap.Bool("success", ev.Success))
		}
	}
}

func waitForMapping(ctx context.Context, store *mapping.Store, key interval.Key) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		if m, ok := store.Get(key); ok && m.IsComplete() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func runCheckPositions(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	d, err := buildDeployment(cfg, log)
	if err != nil {
		return err
	}
	disc := discovery.New(discovery.DefaultConfig(), d.clobResolver(), d.onchainResolver(), d.store, d.clock, log)
	go disc.Run(ctx)
	mapCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	waitForMapping(mapCtx, d.store, d.clock.Current())
	cancel()

	fetch := remoteFetcher(d)
	for _, v := range []quote.Venue{quote.VenueClob, quote.VenueOnchain} {
		for _, s := range []quote.Side{quote.SideYes, quote.SideNo} {
			local := d.tracker.Net(v, s)
			fields := []zap.Field{zap.String("venue", string(v)), zap.String("side", string(s)), zap.Float64("local", local)}
			if remote, err := fetch(ctx, v, s); err != nil {
				log.Info("position snapshot", append(fields, zap.String("remote", "unavailable: "+err.Error()))...)
			} else {
				fields = append(fields, zap.Float64("remote", remote))
				if remote != local {
					fields = append(fields, zap.Bool("diverged", true))
				}
				log.Info("position snapshot", fields...)
			}
		}
	}
	return nil
}

func runSellAllPositions(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	d, err := buildDeployment(cfg, log)
	if err != nil {
		return err
	}
	if cfg.DryRun {
		log.Info("dry-run: would liquidate all open positions, no orders placed")
		return nil
	}
	d.state.SetLiquidationInProgress(true)
	defer d.state.SetLiquidationInProgress(false)

	for _, v := range []quote.Venue{quote.VenueClob, quote.VenueOnchain} {
		client, ok := d.clients[v]
		if !ok {
			continue
		}
		for _, s := range []quote.Side{quote.SideYes, quote.SideNo} {
			qty := d.tracker.Net(v, s)
			if qty <= 0 {
				continue
			}
			marketID, _ := d.tracker.LastMarketID(v, s)
			res, err := client.PlaceOrder(ctx, venue.OrderRequest{
				ClientOrderID: fmt.Sprintf("liquidate-%s-%s-%d", v, s, time.Now().UnixNano()),
				MarketID:      marketID,
				Side:          flattenSide(s),
				Qty:           qty,
				TimeInForce:   "IOC",
			})
			if err != nil {
				log.Error("liquidation order failed", zap.String("venue", string(v)), zap.String("side", string(s)), zap.Error(err))
				continue
			}
			log.Info("liquidation order placed", zap.String("venue", string(v)), zap.String("side", string(s)), zap.String("status", res.Status))
		}
	}
	return nil
}

func runSellPosition(ctx context.Context, cfg *config.Config, log *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("sell-position", flag.ContinueOnError)
	venueName := fs.String("venue", "clob", "venue to sell on: clob or onchain")
	sideName := fs.String("side", "yes", "side to sell: yes or no")
	qty := fs.Float64("qty", 0, "quantity to sell")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *qty <= 0 {
		return fmt.Errorf("boxarb: sell-position requires -qty > 0")
	}

	d, err := buildDeployment(cfg, log)
	if err != nil {
		return err
	}
	if cfg.DryRun {
		log.Info("dry-run: would sell position, no order placed", zap.String("venue", *venueName), zap.String("side", *sideName), zap.Float64("qty", *qty))
		return nil
	}

	v := quote.Venue(*venueName)
	s := quote.Side(*sideName)
	client, ok := d.clients[v]
	if !ok {
		return fmt.Errorf("boxarb: unknown venue %q", *venueName)
	}
	marketID, _ := d.tracker.LastMarketID(v, s)
	res, err := client.PlaceOrder(ctx, venue.OrderRequest{
		ClientOrderID: fmt.Sprintf("sell-%s-%s-%d", v, s, time.Now().UnixNano()),
		MarketID:      marketID,
		Side:          flattenSide(s),
		Qty:           *qty,
		TimeInForce:   "IOC",
	})
	if err != nil {
		return fmt.Errorf("boxarb: sell-position: %w", err)
	}
	log.Info("sell order placed", zap.String("status", res.Status), zap.Float64("filled_qty", res.FilledQty))
	return nil
}
