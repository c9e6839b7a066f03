package main

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/rumahkita/pemilu/internal/catalog"
	"github.com/rumahkita/pemilu/internal/election"
	"github.com/rumahkita/pemilu/internal/election/scheduler"
	"github.com/rumahkita/pemilu/internal/election/selection"
	"github.com/rumahkita/pemilu/internal/handler"
)

type Services struct {
	Handlers *handler.Handlers
}

func setupServices(pool *pgxpool.Pool) *Services {
	// Database layer -> repository -> app/scheduler -> handlers.
	repo := election.NewRepository(pool)
	app := election.NewApp(repo)
	units := catalog.NewRepository(pool)

	sched := scheduler.NewService(repo, clockwork.NewRealClock())
	guard := selection.NewGuard(sched, repo, units)

	return &Services{
		Handlers: handler.NewHandlers(sched, guard, app, units),
	}
}
