package main

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/sandevgo/memtier/internal/config"
	"github.com/sandevgo/memtier/internal/scheduler"
	"github.com/sandevgo/memtier/internal/service/consolidate"
	"github.com/sandevgo/memtier/internal/service/lifecycle"
	"github.com/sandevgo/memtier/internal/service/scoring"
	"github.com/sandevgo/memtier/internal/storage/sqlite"
	"github.com/sandevgo/memtier/internal/worker"
	"github.com/sandevgo/memtier/pkg/log"
	"github.com/sandevgo/memtier/pkg/srv"
)

// NewServices wires storage, workers and the scheduler for `start`.
func NewServices(ctx context.Context) ([]srv.Service, *scheduler.Scheduler) {
	logger := log.FromCtx(ctx)
	services := make([]srv.Service, 0)

	if err := initEnv(ctx, config.GetRuntimePath()); err != nil {
		logger.Fatal().Err(err).Msg("failed to init env")
	}

	appCfg := config.NewAppConfig(ctx)
	lifecycleCfg := config.NewLifecycleConfig(ctx)
	workersCfg := config.NewWorkersConfig(ctx)

	db, repo := initStorage(ctx, appCfg)

	// shutdown order: stop firing jobs first, close the store last
	sched := newScheduler(repo, lifecycleCfg, workersCfg)
	services = append(services, sched)
	services = append(services, srv.NewCleanup(db.Close))

	return services, sched
}

func newScheduler(repo *sqlite.MemoryRepo, lifecycleCfg *config.LifecycleConfig, workersCfg *config.WorkersConfig) *scheduler.Scheduler {
	scorerSvc := scoring.NewService(repo)
	machine := lifecycle.NewMachine(repo, lifecycleCfg)
	engine := consolidate.NewEngine(repo)

	sched := scheduler.New()
	sched.Register(workersCfg.ScorerSchedule,
		worker.NewRunner(worker.NewScorer(repo, scorerSvc, workersCfg.ScorerBatchSize)))
	sched.Register(workersCfg.PromoterSchedule,
		worker.NewRunner(worker.NewPromoter(machine)))
	sched.Register(workersCfg.ConsolidatorSchedule,
		worker.NewRunner(worker.NewConsolidator(engine, lifecycleCfg)))

	return sched
}

func initStorage(ctx context.Context, cfg *config.AppConfig) (*sql.DB, *sqlite.MemoryRepo) {
	logger := log.FromCtx(ctx)

	db, err := sqlite.NewDB(ctx, cfg.GetDatabasePath())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}
	return db, sqlite.NewMemoryRepo(db)
}

// openEngine is the one-shot wiring used by gc and stats.
func openEngine(ctx context.Context) (*consolidate.Engine, func() error) {
	logger := log.FromCtx(ctx)

	if err := initEnv(ctx, config.GetRuntimePath()); err != nil {
		logger.Fatal().Err(err).Msg("failed to init env")
	}

	appCfg := config.NewAppConfig(ctx)
	db, repo := initStorage(ctx, appCfg)
	return consolidate.NewEngine(repo), db.Close
}

// shutdownAll releases resources for one-shot commands that never wait on
// a signal.
func shutdownAll(ctx context.Context, services []srv.Service) {
	for _, s := range services {
		if err := s.Shutdown(ctx); err != nil {
			log.FromCtx(ctx).Error().Err(err).Msgf("%T failed to shutdown", s)
		}
	}
}

func initEnv(ctx context.Context, runtimePath string) error {
	logger := log.FromCtx(ctx)
	envFile := filepath.Join(runtimePath, ".env")

	if _, err := os.Stat(envFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warn().Err(err).Str("path", envFile).Msg("failed to load .env file")
		return err
	}

	logger.Debug().Str("path", envFile).Msg("loaded .env file")
	return nil
}
