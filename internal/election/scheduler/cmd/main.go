package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rumahkita/pemilu/internal/database"
	"github.com/rumahkita/pemilu/internal/dbconfig"
	"github.com/rumahkita/pemilu/internal/election"
	"github.com/rumahkita/pemilu/internal/election/scheduler"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	batchSize := int32(getEnvAsInt("SWEEP_BATCH_SIZE", 100))
	numWorkers := getEnvAsInt("SWEEP_WORKERS", 4)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbCfg := dbconfig.NewConfigFromEnv()
	pool, err := database.NewPool(ctx, dbCfg.PoolDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	log.Info().
		Str("database", dbCfg.Database).
		Int32("batch_size", batchSize).
		Int("workers", numWorkers).
		Msg("starting turn sweeper")

	repo := election.NewRepository(pool)
	clock := clockwork.NewRealClock()
	sched := scheduler.NewService(repo, clock)
	sweeper := scheduler.NewSweeper(sched, repo, clock, batchSize, numWorkers)

	if err := sweeper.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("sweeper exited unexpectedly")
	}

	log.Info().Msg("turn sweeper shutdown complete")
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
