package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tanpawarit/servicesaver/agent/agents/orchestrator"
	"github.com/tanpawarit/servicesaver/agent/agents/specialist"
	"github.com/tanpawarit/servicesaver/agent/api"
	"github.com/tanpawarit/servicesaver/agent/call"
	"github.com/tanpawarit/servicesaver/agent/catalog"
	contractx "github.com/tanpawarit/servicesaver/agent/contract"
	"github.com/tanpawarit/servicesaver/agent/intake"
	llmx "github.com/tanpawarit/servicesaver/agent/llm"
	promptx "github.com/tanpawarit/servicesaver/agent/prompt"
	"github.com/tanpawarit/servicesaver/agent/selector"
	statex "github.com/tanpawarit/servicesaver/agent/state"
	configx "github.com/tanpawarit/servicesaver/pkg/config"
	_ "github.com/tanpawarit/servicesaver/pkg/logger/autoload"
	openrouterx "github.com/tanpawarit/servicesaver/pkg/openrouter"
	qstashx "github.com/tanpawarit/servicesaver/pkg/qstash"
	twiliox "github.com/tanpawarit/servicesaver/pkg/twilio"
)

type AppConfig struct {
	HTTPAddr          string        `envconfig:"HTTP_ADDR" default:":8080"`
	UseSimulationMode bool          `envconfig:"USE_SIMULATION_MODE" default:"true"`
	MaxCandidates     int           `envconfig:"MAX_CANDIDATES" default:"3"`
	CatalogSource     string        `envconfig:"CATALOG_SOURCE" default:"csv"`
	CatalogDir        string        `envconfig:"CATALOG_DIR"`
	CatalogSeed       bool          `envconfig:"CATALOG_SEED" default:"false"`
	DefaultVertical   string        `envconfig:"DEFAULT_VERTICAL" default:"movers"`
	PublicBaseURL     string        `envconfig:"PUBLIC_BASE_URL"`
	ShutdownTimeout   time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatal().Err(err).Msg("servicesaver stopped")
	}
}

func run(ctx context.Context) error {
	appCfg := configx.MustNew[AppConfig]("")
	llmCfg := configx.MustNew[llmx.Config]("OPENROUTER")
	redisCfg := configx.MustNew[statex.UpstashRedisConfig]("UPSTASH_REDIS")

	verticals := promptx.MustLoadRegistry()
	if _, ok := verticals.Lookup(appCfg.DefaultVertical); !ok {
		return fmt.Errorf("default vertical %q: %w", appCfg.DefaultVertical, promptx.ErrUnknownVertical)
	}

	agents, err := specialist.NewRegistry(ctx, *llmCfg, verticals)
	if err != nil {
		return fmt.Errorf("build specialists: %w", err)
	}

	store, err := statex.NewUpstashRedisStore(*redisCfg)
	if err != nil {
		return fmt.Errorf("build record store: %w", err)
	}

	source, closeSource, err := newCatalogSource(ctx, appCfg, verticals)
	if err != nil {
		return err
	}
	defer closeSource()

	providerCatalog, err := catalog.New(source, appCfg.DefaultVertical)
	if err != nil {
		return err
	}
	providerSelector, err := selector.New(agents.Ranker())
	if err != nil {
		return err
	}

	caller, err := newCaller(appCfg, agents, store)
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(orchestrator.Deps{
		Catalog:    providerCatalog,
		Selector:   providerSelector,
		Strategist: agents.Strategist(),
		Summarizer: agents.Summarizer(),
		Analyst:    agents.Analyst(),
		Caller:     caller,
		Store:      store,
	}, orchestrator.Config{
		MaxCandidates:   appCfg.MaxCandidates,
		DefaultVertical: appCfg.DefaultVertical,
	})
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}

	extractor, err := newExtractor(*llmCfg, verticals)
	if err != nil {
		return err
	}

	deps := api.Deps{
		Extractor: extractor,
		Runner:    orch,
		Store:     store,
	}
	qstashCfg := configx.MustNew[qstashx.Config]("QSTASH")
	if qstashCfg.Configured() {
		client, err := qstashx.NewClient(*qstashCfg)
		if err != nil {
			return fmt.Errorf("build qstash client: %w", err)
		}
		deps.Publisher = client
		deps.Verifier = client
	} else {
		log.Warn().Msg("qstash not configured, runs start inline")
	}

	handler, err := api.New(deps, api.Config{
		PublicBaseURL: appCfg.PublicBaseURL,
		BaseContext:   ctx,
	})
	if err != nil {
		return fmt.Errorf("build api: %w", err)
	}

	server := &http.Server{
		Addr:              appCfg.HTTPAddr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().
			Str("addr", appCfg.HTTPAddr).
			Bool("simulation", appCfg.UseSimulationMode).
			Str("catalog_source", appCfg.CatalogSource).
			Msg("servicesaver listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), appCfg.ShutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		handler.Wait()
		log.Info().Msg("servicesaver shut down")
		return err
	})
	return g.Wait()
}

func newCatalogSource(ctx context.Context, appCfg *AppConfig, verticals *promptx.Registry) (contractx.CatalogSource, func(), error) {
	noop := func() {}
	csvSource := catalog.NewEmbeddedCSVSource()
	if dir := strings.TrimSpace(appCfg.CatalogDir); dir != "" {
		var err error
		if csvSource, err = catalog.NewDirCSVSource(dir); err != nil {
			return nil, noop, fmt.Errorf("open catalog dir: %w", err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(appCfg.CatalogSource)) {
	case "", "csv":
		return csvSource, noop, nil
	case "postgres":
		pgCfg := configx.MustNew[catalog.PostgresConfig]("CATALOG_PG")
		pg, err := catalog.OpenPostgres(*pgCfg)
		if err != nil {
			return nil, noop, err
		}
		closeFn := func() {
			if err := pg.Close(); err != nil {
				log.Warn().Err(err).Msg("close catalog database")
			}
		}
		if appCfg.CatalogSeed {
			if err := pg.EnsureSchema(ctx); err != nil {
				closeFn()
				return nil, noop, err
			}
			n, err := pg.Seed(ctx, csvSource, verticals.IDs())
			if err != nil {
				closeFn()
				return nil, noop, err
			}
			log.Info().Int("providers", n).Msg("catalog seeded")
		}
		return pg, closeFn, nil
	default:
		return nil, noop, fmt.Errorf("unknown catalog source %q", appCfg.CatalogSource)
	}
}

func newCaller(appCfg *AppConfig, agents contractx.Registry, store *statex.UpstashRedisStore) (call.Caller, error) {
	if appCfg.UseSimulationMode {
		return call.NewSimulatedCaller(agents.Simulator())
	}

	twilioCfg := configx.MustNew[twiliox.Config]("TWILIO")
	pollCfg := configx.MustNew[call.PollConfig]("POLL")
	gateway, err := twiliox.NewGateway(*twilioCfg, store)
	if err != nil {
		return nil, fmt.Errorf("build twilio gateway: %w", err)
	}
	return call.NewLiveCaller(gateway, *pollCfg, call.WithFallbackPhone(twilioCfg.SampleProviderNumber))
}

func newExtractor(llmCfg llmx.Config, verticals *promptx.Registry) (*intake.Extractor, error) {
	routerCfg := llmCfg.OpenRouterFor(contractx.AgentTypeExtractor)
	client := openrouterx.NewClient(routerCfg)
	if client == nil {
		return nil, errors.New("openrouter client is not configured")
	}
	completer, err := intake.NewOpenAICompleter(client, routerCfg.Model, routerCfg.Temperature)
	if err != nil {
		return nil, err
	}
	return intake.New(completer, verticals, promptx.LoadPromptSet().Extractor)
}
