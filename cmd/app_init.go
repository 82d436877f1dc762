package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-api/internal/enrich"
	"github.com/sells-group/prospect-api/internal/notify"
	"github.com/sells-group/prospect-api/internal/queue"
	"github.com/sells-group/prospect-api/internal/registry"
	"github.com/sells-group/prospect-api/internal/scrape"
	"github.com/sells-group/prospect-api/internal/search"
	"github.com/sells-group/prospect-api/internal/store"
	"github.com/sells-group/prospect-api/pkg/anthropic"
	"github.com/sells-group/prospect-api/pkg/jina"
	"github.com/sells-group/prospect-api/pkg/perplexity"
)

// appEnv holds the initialized store, clients, and services shared by the
// serve/worker/enrich/import commands.
type appEnv struct {
	Store     store.Store
	Registry  *registry.Registry
	Completer anthropic.Client  // nil when no API key is configured
	Searcher  perplexity.Client // nil when no API key is configured
	Scraper   scrape.Scraper
	Hub       *notify.Hub
	Notifier  notify.Notifier
	Queue     *queue.Queue
	Describer *enrich.Describer
	Search    *search.Service
}

// Close releases resources held by the environment.
func (env *appEnv) Close() {
	if env.Notifier != nil {
		_ = env.Notifier.Close()
	}
	if env.Store != nil {
		_ = env.Store.Close()
	}
}

// initApp wires the environment for the given command scope. Callers should
// defer env.Close().
func initApp(ctx context.Context, scope string) (*appEnv, error) {
	if err := cfg.Validate(scope); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}

	reg, err := registry.Load(cfg.Registry.Path)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	env := &appEnv{Store: st, Registry: reg}

	if cfg.Anthropic.Key != "" {
		env.Completer = anthropic.NewClient(cfg.Anthropic.Key,
			anthropic.WithDefaultModel(cfg.Anthropic.Model))
	}
	if cfg.Perplexity.Key != "" {
		env.Searcher = perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model))
	}

	scrapeTimeout := time.Duration(cfg.Scrape.TimeoutSecs) * time.Second
	scrapers := []scrape.Scraper{scrape.NewLocalScraper(scrapeTimeout)}
	if cfg.Jina.Key != "" {
		jc := jina.NewClient(cfg.Jina.Key, jina.WithBaseURL(cfg.Jina.BaseURL))
		scrapers = append(scrapers, scrape.NewJinaAdapter(jc))
	}
	env.Scraper = scrape.NewChain(cfg.Scrape.MaxChars, scrapers...)

	env.Hub = notify.NewHub()
	env.Notifier = env.Hub
	if cfg.Notify.Transport == "kafka" {
		kafka := notify.NewKafkaNotifier(cfg.Notify.Brokers, cfg.Notify.TopicPrefix+".jobs")
		env.Notifier = notify.Multi(env.Hub, kafka)
	}

	env.Queue = queue.New(st, env.Notifier)

	var parser *search.Parser
	var generator *search.Generator
	if env.Completer != nil {
		env.Describer = enrich.NewDescriber(st, env.Scraper, env.Completer, reg)
		parser = search.NewParser(env.Completer, reg)
		if env.Searcher != nil {
			generator = search.NewGenerator(env.Completer, env.Searcher, reg)
		}
	}
	env.Search = search.NewService(st, parser, generator, reg)

	zap.L().Info("app initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("notify", cfg.Notify.Transport),
		zap.Bool("completions", env.Completer != nil),
		zap.Bool("web_search", env.Searcher != nil),
	)
	return env, nil
}

// initStore opens the configured database backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "prospect.db"
		}
		return store.NewSQLite(dsn)
	case "postgres", "":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
}

// newWorker builds the job worker from config.
func newWorker(env *appEnv) *queue.Worker {
	return queue.NewWorker(env.Store, env.Describer, env.Notifier, queue.WorkerConfig{
		Concurrency:  cfg.Worker.Concurrency,
		PollInterval: time.Duration(cfg.Worker.PollIntervalSecs) * time.Second,
		JobTimeout:   time.Duration(cfg.Worker.JobTimeoutSecs) * time.Second,
		RatePerSec:   cfg.Worker.RatePerSec,
	})
}
