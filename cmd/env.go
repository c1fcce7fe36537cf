package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/fieldforge/extract-cli/internal/align"
	"github.com/fieldforge/extract-cli/internal/extract"
	"github.com/fieldforge/extract-cli/internal/modelstore"
	"github.com/fieldforge/extract-cli/internal/scorer"
	"github.com/fieldforge/extract-cli/internal/store"
	"github.com/fieldforge/extract-cli/internal/strategy"
	"github.com/fieldforge/extract-cli/internal/tokendoc"
	"github.com/fieldforge/extract-cli/internal/training"
)

var docsDir string

// env bundles the wired application components shared by all commands.
type env struct {
	Store    store.Store
	Models   *modelstore.Registry
	Docs     *tokendoc.Dir
	Service  *extract.Service
	Pipeline *training.Pipeline
}

// initEnv opens the store, runs migrations and wires the extraction service
// and training pipeline from config.
func initEnv(ctx context.Context) (*env, error) {
	st, err := store.New(cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	models := modelstore.New(cfg.Models.Dir)
	docs := tokendoc.NewDir(resolveDocsDir())

	strategies := []strategy.Strategy{
		strategy.NewCRF(models),
		strategy.NewPositional(),
	}
	service := extract.NewService(strategies, scorer.New(st, cfg.Scorer), st)
	pipeline := training.NewPipeline(st, models, docs, align.New(cfg.Align), cfg.Training)

	return &env{
		Store:    st,
		Models:   models,
		Docs:     docs,
		Service:  service,
		Pipeline: pipeline,
	}, nil
}

func (e *env) Close() {
	_ = e.Store.Close()
}

func resolveDocsDir() string {
	if docsDir != "" {
		return docsDir
	}
	return cfg.Docs.Dir
}

func init() {
	rootCmd.PersistentFlags().StringVar(&docsDir, "docs-dir", "", "token document directory (default \"docs\")")
}
