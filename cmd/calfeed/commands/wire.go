package commands

import (
	"fmt"

	"calfeed/internal/config"
	"calfeed/internal/curated"
	"calfeed/internal/eventfiles"
	"calfeed/internal/gitrepo"
	"calfeed/internal/ics"
	"calfeed/internal/pipeline"
)

// app holds the collaborators built from one configuration.
type app struct {
	cfg    *config.Config
	store  *eventfiles.Store
	runner *pipeline.Runner
}

func newApp(cfg *config.Config) (*app, error) {
	resolver, err := ics.LoadResolver(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	parser := ics.NewParser(resolver, ics.NewSanitizer(cfg.DescriptionTemplate))

	decoder, err := ics.NewDecoder(cfg.HTTP.Charset)
	if err != nil {
		return nil, err
	}
	fetcher := ics.NewFetcher(ics.FetcherConfig{
		CacheDir:     cfg.CacheDir,
		UserAgent:    cfg.HTTP.UserAgent,
		From:         cfg.HTTP.From,
		Timeout:      cfg.HTTP.Timeout,
		RequestDelay: cfg.HTTP.RequestDelay,
		Decoder:      decoder,
	})

	sources := make([]ics.Source, 0, len(cfg.Feeds))
	for _, f := range cfg.Feeds {
		if f.URL == "" {
			continue
		}
		sources = append(sources, ics.Source{ID: f.ID, URL: f.URL})
	}

	var extra pipeline.EventSource
	if cfg.Curated.Dir != "" {
		var repo curated.Syncer
		if cfg.Curated.Repo != "" {
			repo = gitrepo.New(cfg.Curated.RepoDir, cfg.Curated.Repo)
		}
		extra = curated.NewSource(curated.Config{
			Dir:            cfg.Curated.Dir,
			Description:    cfg.Curated.Description,
			HorizonDays:    cfg.Curated.HorizonDays,
			MaxOccurrences: cfg.Curated.MaxOccurrences,
		}, resolver, repo)
	}

	store := eventfiles.NewStore(cfg.OutputDir, cfg.ICSDir)

	var publisher pipeline.Publisher
	if cfg.Git.Enabled {
		repo := gitrepo.New(cfg.OutputDir, cfg.Git.Remote)
		if !repo.Exists() && cfg.Git.Remote == "" {
			return nil, fmt.Errorf("git enabled but %s is not a working copy and no remote is set", cfg.OutputDir)
		}
		publisher = repo
	}

	runner := pipeline.NewRunner(fetcher, parser, extra, store, publisher, pipeline.Options{
		Sources: sources,
		Author:  cfg.Git.Author,
		Message: cfg.Git.Message,
		Push:    cfg.Git.Push,
	})
	return &app{cfg: cfg, store: store, runner: runner}, nil
}
