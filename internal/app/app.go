// Package app wires all Skybridge subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject fakes via functional options (WithStore,
// WithCatalogSource, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/natfields/skybridge/internal/config"
	"github.com/natfields/skybridge/internal/health"
	"github.com/natfields/skybridge/internal/host"
	"github.com/natfields/skybridge/internal/observe"
	"github.com/natfields/skybridge/internal/server"
	"github.com/natfields/skybridge/internal/shaper"
	"github.com/natfields/skybridge/internal/shaper/catalog"
	"github.com/natfields/skybridge/internal/shaper/mortgage"
	"github.com/natfields/skybridge/internal/shaper/sports"
	"github.com/natfields/skybridge/internal/shaper/stocks"
	"github.com/natfields/skybridge/internal/statestore"
	"github.com/natfields/skybridge/internal/widget"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config

	store    statestore.Store
	pgStore  *statestore.PostgresStore
	source   catalog.Source
	comparer catalog.Comparer
	embedder catalog.Embedder
	index    *catalog.SemanticIndex

	srv     *server.Server
	hub     *host.Hub
	handler http.Handler
	httpSrv *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a widget state store instead of creating one from config.
func WithStore(s statestore.Store) Option {
	return func(a *App) { a.store = s }
}

// WithCatalogSource injects a product source instead of the HTTP storefront
// client.
func WithCatalogSource(s catalog.Source) Option {
	return func(a *App) { a.source = s }
}

// WithComparer injects a comparison backend instead of the configured LLM.
func WithComparer(c catalog.Comparer) Option {
	return func(a *App) { a.comparer = c }
}

// New creates an App by wiring all subsystems together: widget catalog,
// shapers, toolbox, protocol server, sync hub and the HTTP surface.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	registry, err := widget.DefaultCatalog()
	if err != nil {
		return nil, fmt.Errorf("app: build widget catalog: %w", err)
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init state store: %w", err)
	}
	if err := a.initCatalog(ctx); err != nil {
		return nil, fmt.Errorf("app: init catalog: %w", err)
	}

	toolbox, err := a.buildToolbox(registry)
	if err != nil {
		return nil, fmt.Errorf("app: bind tools: %w", err)
	}

	a.srv, err = server.New(registry, toolbox, Version, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("app: build server: %w", err)
	}

	a.hub = host.NewHub(toolbox, a.store,
		host.WithDisplayModePolicy(host.PipOnly),
	)

	a.handler = a.buildHandler()
	return a, nil
}

// initStore selects Postgres or in-memory widget state persistence.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	dsn := a.cfg.Store.PostgresDSN
	if dsn == "" {
		slog.Warn("no postgres_dsn configured; widget state is in-memory only")
		a.store = statestore.NewMemoryStore()
		return nil
	}

	pg, err := statestore.NewPostgresStore(ctx, dsn)
	if err != nil {
		return err
	}
	a.pgStore = pg
	a.store = pg
	a.closers = append(a.closers, func() error {
		pg.Close()
		return nil
	})
	slog.Info("widget state store connected", "backend", "postgres")
	return nil
}

// initCatalog wires the product source, the comparison model and, when
// enabled, the semantic index over the shared Postgres pool.
func (a *App) initCatalog(ctx context.Context) error {
	cc := a.cfg.Catalog

	if a.source == nil && cc.Endpoint != "" {
		src, err := catalog.NewHTTPSource(cc.Endpoint, cc.AccessToken)
		if err != nil {
			return err
		}
		a.source = src
	}

	if a.cfg.LLM.APIKey != "" {
		aiOpts := []catalog.AIOption{}
		if a.cfg.LLM.BaseURL != "" {
			aiOpts = append(aiOpts, catalog.WithAIBaseURL(a.cfg.LLM.BaseURL))
		}
		if cc.Embedding.Model != "" {
			aiOpts = append(aiOpts, catalog.WithEmbeddingModel(cc.Embedding.Model))
		}
		ai, err := catalog.NewAIClient(a.cfg.LLM.APIKey, a.cfg.LLM.Model, aiOpts...)
		if err != nil {
			return err
		}
		if a.comparer == nil {
			a.comparer = ai
		}
		a.embedder = ai
	}

	if cc.Embedding.Enabled {
		if a.pgStore == nil || a.pgStore.Pool() == nil {
			return fmt.Errorf("semantic index requires the postgres state store")
		}
		if a.embedder == nil {
			return fmt.Errorf("semantic index requires an embedding model")
		}
		a.index = catalog.NewSemanticIndex(a.pgStore.Pool(), a.embedder)
		if err := a.index.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate semantic index: %w", err)
		}
		slog.Info("semantic product search enabled")
	}

	return nil
}

// buildToolbox binds every widget tool plus the plain mortgage tool.
func (a *App) buildToolbox(registry *widget.Registry) (*server.Toolbox, error) {
	tb := server.NewToolbox(registry)

	if a.source == nil {
		// A widget without its upstream still registers; calls produce an
		// in-band domain failure so the host never sees a transport error.
		for id, bind := range map[string]error{
			"show-products-carousel": server.Bind[catalog.CarouselArgs](tb, "show-products-carousel", unconfigured("catalog")),
			"show-product-detail":    server.Bind[catalog.DetailArgs](tb, "show-product-detail", unconfigured("catalog")),
			"compare-products":       server.Bind[catalog.CompareArgs](tb, "compare-products", unconfigured("catalog")),
			"shopping-cart":          server.Bind[catalog.CartArgs](tb, "shopping-cart", unconfigured("catalog")),
		} {
			if bind != nil {
				return nil, fmt.Errorf("bind %s: %w", id, bind)
			}
		}
	} else {
		cs := &catalog.Shaper{
			Source:   a.source,
			Carts:    catalog.NewCarts(a.cfg.Catalog.ShopDomain),
			Comparer: a.comparer,
			Index:    a.index,
		}
		binds := []struct {
			id  string
			err error
		}{
			{"show-products-carousel", server.Bind[catalog.CarouselArgs](tb, "show-products-carousel", cs.Carousel)},
			{"show-product-detail", server.Bind[catalog.DetailArgs](tb, "show-product-detail", cs.Detail)},
			{"compare-products", server.Bind[catalog.CompareArgs](tb, "compare-products", cs.Compare)},
			{"shopping-cart", server.Bind[catalog.CartArgs](tb, "shopping-cart", cs.Cart)},
		}
		for _, b := range binds {
			if b.err != nil {
				return nil, b.err
			}
		}
	}

	stocksFn := unconfigured("stocks")
	if a.cfg.Stocks.Endpoint != "" {
		sc, err := stocks.NewClient(a.cfg.Stocks.Endpoint)
		if err != nil {
			return nil, err
		}
		stocksFn = sc.Shape
	}
	if err := server.Bind[stocks.Args](tb, "get-stock-summary", stocksFn); err != nil {
		return nil, err
	}

	sportsFn := unconfigured("sports")
	if a.cfg.Sports.Endpoint != "" {
		sc, err := sports.NewClient(a.cfg.Sports.Endpoint)
		if err != nil {
			return nil, err
		}
		sportsFn = sc.Shape
	}
	if err := server.Bind[sports.Args](tb, "get-player-stats", sportsFn); err != nil {
		return nil, err
	}

	err := server.BindPlain[mortgage.Args](tb, "mortgage-payment",
		"Mortgage Payment",
		"Computes the monthly payment and amortization schedule head for a fixed-rate mortgage.",
		"Computed mortgage payment.",
		mortgage.Shape,
	)
	if err != nil {
		return nil, err
	}

	return tb, nil
}

// unconfigured is the shaper bound for tools whose upstream integration is
// absent from the config.
func unconfigured(integration string) shaper.Func {
	return func(context.Context, json.RawMessage) shaper.Result {
		return shaper.Fail(
			fmt.Sprintf("the %s integration is not configured on this server", integration),
			map[string]any{"integration": integration},
		)
	}
}

// buildHandler assembles the HTTP surface: MCP endpoint, sync channel,
// health probes and the metrics scrape, all behind the observe middleware.
func (a *App) buildHandler() http.Handler {
	checkers := []health.Checker{}
	if a.pgStore != nil {
		checkers = append(checkers, health.Store("state_store", a.pgStore))
	}
	if a.cfg.Catalog.Endpoint != "" {
		checkers = append(checkers, health.Endpoint("catalog", a.cfg.Catalog.Endpoint, nil))
	}
	if a.cfg.Stocks.Endpoint != "" {
		checkers = append(checkers, health.Endpoint("stocks", a.cfg.Stocks.Endpoint, nil))
	}
	if a.cfg.Sports.Endpoint != "" {
		checkers = append(checkers, health.Endpoint("sports", a.cfg.Sports.Endpoint, nil))
	}
	healthMux := http.NewServeMux()
	health.New(checkers...).Register(healthMux)

	origins := a.cfg.Server.AllowedOrigins
	handler := a.srv.HTTPHandler(server.HTTPConfig{
		Sync:           host.NewChannelServer(a.hub, originHosts(origins)),
		Health:         healthMux,
		Metrics:        promhttp.Handler(),
		AllowedOrigins: origins,
	})
	return observe.Middleware(observe.DefaultMetrics())(handler)
}

// originHosts converts CORS origins (scheme://host) to the host patterns the
// WebSocket accept check matches against. "*" passes through.
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
			continue
		}
		hosts = append(hosts, o)
	}
	return hosts
}

// Handler returns the assembled HTTP surface, for tests and embedding.
func (a *App) Handler() http.Handler { return a.handler }

// Hub returns the sync hub, for tests and embedding.
func (a *App) Hub() *host.Hub { return a.hub }

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	a.httpSrv = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.httpSrv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	slog.Info("skybridge serving", "addr", a.cfg.Server.ListenAddr, "tls", a.cfg.Server.TLS != nil)

	select {
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
		drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.httpSrv.Shutdown(drainCtx); err != nil {
			slog.Warn("http drain error", "err", err)
		}
		return ctx.Err()
	}
}

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
