// Package container provides dependency injection and lifecycle management
// for the moderation service following Clean Architecture principles.
package container

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/openscience/moderation/internal/application/dispatcher"
	"github.com/openscience/moderation/internal/application/machines"
	"github.com/openscience/moderation/internal/application/port"
	"github.com/openscience/moderation/internal/application/service"
	"github.com/openscience/moderation/internal/infrastructure/notify"
	"github.com/openscience/moderation/internal/infrastructure/persistence/repository"
	"github.com/openscience/moderation/internal/infrastructure/scheduler"
	"github.com/openscience/moderation/internal/infrastructure/search"
	"github.com/openscience/moderation/internal/infrastructure/token"
	"github.com/openscience/moderation/pkg/database"
	"github.com/openscience/moderation/pkg/utils"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB        *database.DB
	TxManager *repository.TxManager
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Preprint             port.PreprintRepository
	Registration         port.RegistrationRepository
	Sanction             port.SanctionRepository
	NodeRequest          port.NodeRequestRepository
	PreprintRequest      port.PreprintRequestRepository
	CollectionSubmission port.CollectionSubmissionRepository
	Action               port.ActionRepository
	Provider             port.ProviderRepository
	Node                 port.NodeRepository
	Moderator            *repository.ModeratorRepository
	User                 *repository.UserRepository
}

// ExternalBundle groups the outward-facing adapters.
type ExternalBundle struct {
	Indexer  port.SearchIndexer
	Notifier port.Notifier
	Tokens   port.TokenService
}

// MachineBundle groups the workflow machines.
type MachineBundle struct {
	Reviews          *machines.ReviewsMachine
	NodeRequests     *machines.NodeRequestsMachine
	PreprintRequests *machines.PreprintRequestsMachine
	Sanctions        *machines.SanctionsMachine
	Collections      *machines.CollectionsMachine
	Moderation       *machines.RegistrationModerationService
}

// ServiceBundle groups the read-side application services.
type ServiceBundle struct {
	Queue   *service.QueueService
	Export  *service.ExportService
	Effects *service.EffectHandlers
}

// ProvideDatabase creates the database connection, runs pending migrations
// and wraps the connection in a transaction manager.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:        db,
		TxManager: repository.NewTxManager(db, logger),
	}, nil
}

// ProvideRepositories creates all repositories over one database connection.
func ProvideRepositories(db *database.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}

	return &RepositoryBundle{
		Preprint:             repository.NewPreprintRepository(db, logger),
		Registration:         repository.NewRegistrationRepository(db, logger),
		Sanction:             repository.NewSanctionRepository(db, logger),
		NodeRequest:          repository.NewNodeRequestRepository(db, logger),
		PreprintRequest:      repository.NewPreprintRequestRepository(db, logger),
		CollectionSubmission: repository.NewCollectionSubmissionRepository(db, logger),
		Action:               repository.NewActionRepository(db, logger),
		Provider:             repository.NewProviderRepository(db, logger),
		Node:                 repository.NewNodeRepository(db, logger),
		Moderator:            repository.NewModeratorRepository(db, logger),
		User:                 repository.NewUserRepository(db, logger),
	}, nil
}

// ProvideExternal creates the search indexer, the SMTP notifier and the
// sanction token service.
func ProvideExternal(cfg *Config, resolver notify.RecipientResolver, logger *zap.Logger) (*ExternalBundle, error) {
	indexer, err := search.NewElasticIndexer(search.Config{
		Addresses: cfg.Search.Addresses,
		Username:  cfg.Search.Username,
		Password:  cfg.Search.Password,
		Index:     cfg.Search.Index,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create search indexer: %w", err)
	}

	notifier := notify.NewSMTPNotifier(notify.Config{
		Host:        cfg.Email.Host,
		Port:        cfg.Email.Port,
		Username:    cfg.Email.Username,
		Password:    cfg.Email.Password,
		FromAddress: cfg.Email.FromAddress,
	}, resolver, logger)

	tokens := token.NewJWTService(cfg.Sanction.TokenSecret, cfg.Sanction.TokenTTL)

	return &ExternalBundle{
		Indexer:  indexer,
		Notifier: notifier,
		Tokens:   tokens,
	}, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(utils.NewKVLogger(logger)),
	), nil
}

// MachineDeps holds dependencies for the workflow machines.
type MachineDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	External   *ExternalBundle
	Dispatcher dispatcher.Dispatcher
	Logger     *zap.Logger
}

// ProvideMachines creates the derivation service and all five workflow
// machines over shared repositories and one dispatcher.
func ProvideMachines(deps *MachineDeps) (*MachineBundle, error) {
	if deps == nil || deps.Repos == nil || deps.TxManager == nil || deps.Dispatcher == nil {
		return nil, fmt.Errorf("machine dependencies are incomplete")
	}

	log := utils.NewKVLogger(deps.Logger)

	moderation := machines.NewRegistrationModerationService(
		deps.Repos.Registration,
		deps.Repos.Action,
		log,
	)

	reviews := machines.NewReviewsMachine(
		deps.Repos.Preprint,
		deps.Repos.Provider,
		deps.Repos.Action,
		deps.Repos.Moderator,
		deps.TxManager,
		deps.Dispatcher,
		log,
	)

	nodeRequests := machines.NewNodeRequestsMachine(
		deps.Repos.NodeRequest,
		deps.Repos.Node,
		deps.Repos.Action,
		deps.TxManager,
		deps.Dispatcher,
		log,
	)

	preprintRequests := machines.NewPreprintRequestsMachine(
		deps.Repos.PreprintRequest,
		deps.Repos.Preprint,
		deps.Repos.Provider,
		reviews,
		deps.Repos.Action,
		deps.Repos.Moderator,
		deps.TxManager,
		deps.Dispatcher,
		log,
	)

	sanctions := machines.NewSanctionsMachine(
		deps.Repos.Sanction,
		deps.Repos.Registration,
		deps.Repos.Provider,
		deps.Repos.Action,
		moderation,
		deps.Repos.Moderator,
		deps.External.Tokens,
		deps.TxManager,
		deps.Dispatcher,
		log,
	)

	collections := machines.NewCollectionsMachine(
		deps.Repos.CollectionSubmission,
		deps.Repos.Provider,
		deps.Repos.Action,
		deps.Repos.Moderator,
		deps.TxManager,
		deps.Dispatcher,
		log,
	)

	return &MachineBundle{
		Reviews:          reviews,
		NodeRequests:     nodeRequests,
		PreprintRequests: preprintRequests,
		Sanctions:        sanctions,
		Collections:      collections,
		Moderation:       moderation,
	}, nil
}

// ServiceDeps holds dependencies for the read-side services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	External   *ExternalBundle
	Dispatcher dispatcher.Dispatcher
	Logger     *zap.Logger
}

// ProvideServices creates the queue and export services and registers the
// effect handlers on the dispatcher.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Repos == nil || deps.External == nil || deps.Dispatcher == nil {
		return nil, fmt.Errorf("service dependencies are incomplete")
	}

	log := utils.NewKVLogger(deps.Logger)

	queue := service.NewQueueService(
		deps.Repos.Preprint,
		deps.Repos.Registration,
		deps.Repos.CollectionSubmission,
		deps.Repos.Action,
		deps.Repos.Moderator,
		log,
	)

	export := service.NewExportService(deps.Repos.Action, deps.Repos.Moderator, log)

	effects := service.NewEffectHandlers(deps.External.Notifier, deps.External.Indexer, deps.Repos.Moderator, log)
	effects.Register(deps.Dispatcher)

	return &ServiceBundle{
		Queue:   queue,
		Export:  export,
		Effects: effects,
	}, nil
}

// ProvideScheduler creates the sanction sweep scheduler over the sanctions
// machine.
func ProvideScheduler(sweeper scheduler.Sweeper, cfg *SanctionConfig, logger *zap.Logger) (*scheduler.Scheduler, error) {
	if sweeper == nil {
		return nil, fmt.Errorf("sweeper is required")
	}
	return scheduler.New(sweeper, scheduler.Config{
		ApprovalWindowSpec: cfg.ApprovalWindowSpec,
		EmbargoSpec:        cfg.EmbargoSpec,
		SweepTimeout:       cfg.SweepTimeout,
	}, logger), nil
}
