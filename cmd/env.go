package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrichment-worker/internal/config"
	"github.com/sells-group/enrichment-worker/internal/notify"
	"github.com/sells-group/enrichment-worker/internal/pipeline"
	"github.com/sells-group/enrichment-worker/internal/scrape"
	"github.com/sells-group/enrichment-worker/internal/source"
	"github.com/sells-group/enrichment-worker/internal/store"
	"github.com/sells-group/enrichment-worker/pkg/brave"
)

// workerEnv holds the store and the wired job coordinator used by the
// serve and enrich commands.
type workerEnv struct {
	Store       store.Store
	Coordinator *pipeline.Coordinator
}

// Close releases resources held by the environment.
func (we *workerEnv) Close() {
	if we.Store != nil {
		_ = we.Store.Close()
	}
}

// initEnv opens and migrates the store, then builds the search client,
// resolver, scraper, pipeline, notifier and coordinator from cfg. Callers
// should defer env.Close().
func initEnv(ctx context.Context, c *config.Config) (*workerEnv, error) {
	st, err := store.Open(ctx, c.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	if c.Brave.Key == "" {
		zap.L().Warn("ENRICH_BRAVE_KEY not set, source resolution will degrade to empty results")
	}
	search := brave.NewClient(c.Brave.Key,
		brave.WithBaseURL(c.Brave.BaseURL),
		brave.WithTimeout(seconds(c.Brave.TimeoutSecs)),
		brave.WithRateLimit(c.Brave.RateLimitRPS),
	)
	resolver := source.NewResolver(search, source.Options{
		Count:      c.Brave.Count,
		Country:    c.Brave.Country,
		SearchLang: c.Brave.SearchLang,
	})

	scraper := scrape.NewScraper(
		scrape.WithUserAgent(c.Scrape.UserAgent),
		scrape.WithTimeout(seconds(c.Scrape.TimeoutSecs)),
		scrape.WithMaxBodyBytes(c.Scrape.MaxBodyBytes),
		scrape.WithPhoneRegion(c.Scrape.PhoneRegion),
	)

	p := pipeline.New(resolver, scraper, st, pipeline.Options{
		MaxScrapeURLs: c.Pipeline.MaxScrapeURLs,
		Cooldown:      c.Pipeline.Cooldown(),
		Region:        c.Pipeline.DefaultRegion,
	})

	var notifier notify.Notifier
	if c.Callback.URL != "" {
		notifier = notify.NewCallback(c.Callback.URL, c.Server.Secret,
			notify.WithTimeout(seconds(c.Callback.TimeoutSecs)),
		)
	} else {
		zap.L().Info("callback url not set, completion notifications disabled")
	}

	return &workerEnv{
		Store:       st,
		Coordinator: pipeline.NewCoordinator(p, st, notifier),
	}, nil
}

// seconds converts a config value to a duration; zero or negative keeps the
// component default.
func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
