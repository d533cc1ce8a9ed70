package main

import (
	"context"
	"os"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/orgmap/internal/classify"
	"github.com/sells-group/orgmap/internal/discovery"
	"github.com/sells-group/orgmap/internal/pipeline"
	"github.com/sells-group/orgmap/internal/resilience"
	"github.com/sells-group/orgmap/internal/store"
	sfpkg "github.com/sells-group/orgmap/pkg/salesforce"
)

// pipelineEnv holds the store and the pipeline built on it.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Online   bool
}

// Close releases resources held by the environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline opens and migrates the store and builds the Pipeline. When
// requireSalesforce is set missing credentials are an error; otherwise the
// pipeline runs offline without them. Callers should defer env.Close().
func initPipeline(ctx context.Context, requireSalesforce bool) (*pipelineEnv, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	if requireSalesforce {
		if err := cfg.Validate("discover"); err != nil {
			return nil, err
		}
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	opts := []pipeline.Option{
		pipeline.WithThresholds(classify.Thresholds{
			Overall:   cfg.Classify.ReviewOverall,
			Household: cfg.Classify.ReviewHousehold,
		}),
		pipeline.WithQueryFields(cfg.Query.Fields),
	}

	env := &pipelineEnv{Store: st}
	if cfg.Salesforce.ClientID != "" {
		sf, err := initSalesforce()
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		breakers := resilience.NewTenantBreakers(resilience.BreakerConfig{
			FailureThreshold: cfg.Discovery.BreakerThreshold,
		})
		asm := discovery.NewAssembler(sf, discovery.ConfigFrom(cfg.Discovery), breakers)
		opts = append(opts, pipeline.WithAssembler(asm), pipeline.WithSalesforce(sf))
		env.Online = true
	} else {
		zap.L().Debug("ORGMAP_SALESFORCE_CLIENT_ID not set, running offline")
	}

	env.Pipeline = pipeline.New(st, opts...)
	return env, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "orgmap.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initSalesforce() (sfpkg.Client, error) {
	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         cfg.Salesforce.LoginURL,
		Username:       cfg.Salesforce.Username,
		ConsumerKey:    cfg.Salesforce.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	return sfpkg.NewClient(sf, sfpkg.WithRateLimit(cfg.Salesforce.RateLimit)), nil
}
