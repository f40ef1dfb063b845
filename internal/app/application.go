package app

import (
	"context"
	"fmt"
	"time"

	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/services/badges"
	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/services/compositor"
	flairsvc "github.com/saltoriousSIG/peeples-pins-generator/internal/app/services/flair"
	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/services/generator"
	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/storage"
	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/storage/memory"
	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/system"
	"github.com/saltoriousSIG/peeples-pins-generator/internal/cache"
	"github.com/saltoriousSIG/peeples-pins-generator/internal/generation"
	"github.com/saltoriousSIG/peeples-pins-generator/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Badges storage.BadgeStateStore
}

// Deps carries the external collaborators. Fetcher and Pinner are required;
// the generation clients are optional and leave the generator disabled when
// absent.
type Deps struct {
	Fetcher      badges.Fetcher
	Pinner       badges.Pinner
	Cache        cache.ImageCache
	FetchTimeout time.Duration

	Text       generation.TextClient
	Images     generation.ImageClient
	Profiles   generation.ProfileClient
	URLFetcher generator.URLFetcher
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Badges     *badges.Service
	Flair      *flairsvc.Service
	Compositor *compositor.Service
	Generator  *generator.Service
}

// New builds a fully initialised application with the provided stores and
// collaborators.
func New(stores Stores, deps Deps, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if deps.Fetcher == nil || deps.Pinner == nil {
		return nil, fmt.Errorf("image fetcher and pinner are required")
	}
	if stores.Badges == nil {
		stores.Badges = memory.New()
	}

	manager := system.NewManager()

	flairService := flairsvc.New(log)
	compService := compositor.New(log)

	opts := []badges.Option{badges.WithFetchTimeout(deps.FetchTimeout)}
	if deps.Cache != nil {
		opts = append(opts, badges.WithCache(deps.Cache))
	}
	badgeService := badges.New(stores.Badges, deps.Fetcher, deps.Pinner, compService, flairService, log, opts...)

	genService := generator.New(deps.Text, deps.Images, deps.Profiles, deps.URLFetcher, deps.Pinner, badgeService, log)
	if !genService.Enabled() {
		log.Warn("generation clients not configured; badge generation disabled")
	}

	for _, name := range []string{"flair", "compositor", "badges", "generator"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	return &Application{
		manager:    manager,
		log:        log,
		Badges:     badgeService,
		Flair:      flairService,
		Compositor: compService,
		Generator:  genService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
