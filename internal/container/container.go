package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/openscience/moderation/internal/application/dispatcher"
	"github.com/openscience/moderation/internal/application/port"
	"github.com/openscience/moderation/internal/infrastructure/scheduler"
	"github.com/openscience/moderation/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// It follows Clean Architecture principles with ordered initialization
// and reverse-order teardown.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	db           *database.DB
	txManager    port.TransactionManager
	repositories *RepositoryBundle

	// Infrastructure - External
	external *ExternalBundle

	// Application
	dispatcher dispatcher.Dispatcher
	machines   *MachineBundle
	services   *ServiceBundle

	// Background
	scheduler *scheduler.Scheduler

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Database and repositories
// 2. External adapters (search, email, tokens)
// 3. Event dispatcher
// 4. Workflow machines
// 5. Read-side services and effect handlers
// 6. Sweep scheduler
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	// Step 1: Initialize database and repositories
	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	// Step 2: Initialize external adapters
	if err := c.initExternal(); err != nil {
		return fmt.Errorf("failed to initialize external adapters: %w", err)
	}
	c.logger.Info("External adapters initialized")

	// Step 3: Initialize dispatcher
	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dispatcher: %w", err)
	}
	c.dispatcher = disp
	c.logger.Info("Dispatcher initialized")

	// Step 4: Initialize workflow machines
	machines, err := ProvideMachines(&MachineDeps{
		Repos:      c.repositories,
		TxManager:  c.txManager,
		External:   c.external,
		Dispatcher: c.dispatcher,
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize machines: %w", err)
	}
	c.machines = machines
	c.logger.Info("Workflow machines initialized")

	// Step 5: Initialize services and effect handlers
	services, err := ProvideServices(&ServiceDeps{
		Repos:      c.repositories,
		External:   c.external,
		Dispatcher: c.dispatcher,
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.services = services
	c.logger.Info("Application services initialized")

	// Step 6: Initialize and start the sweep scheduler
	sched, err := ProvideScheduler(c.machines.Sanctions, &c.config.Sanction, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	c.scheduler = sched
	c.logger.Info("Sweep scheduler started")

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	// Cancel context to signal all goroutines
	if c.cancel != nil {
		c.cancel()
	}

	// Step 1: Stop the scheduler (reverse of step 6)
	if c.scheduler != nil {
		c.scheduler.Stop()
		c.logger.Info("Scheduler stopped")
	}

	// Step 2: Close dispatcher (reverse of step 3)
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
	}

	// Step 3: Close database (reverse of step 1)
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health() *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	// Check database
	if c.db != nil {
		if err := c.db.Ping(); err != nil {
			status.Components["database"] = ComponentHealth{
				Healthy: false,
				Message: fmt.Sprintf("ping failed: %v", err),
			}
			status.Overall = false
		} else {
			status.Components["database"] = ComponentHealth{Healthy: true}
		}
	} else {
		status.Components["database"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	// Check dispatcher
	if c.dispatcher != nil {
		status.Components["dispatcher"] = ComponentHealth{Healthy: true}
	} else {
		status.Components["dispatcher"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	// Check scheduler
	if c.scheduler != nil {
		status.Components["scheduler"] = ComponentHealth{Healthy: true}
	} else {
		status.Components["scheduler"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	// Check repositories
	if c.repositories != nil {
		status.Components["repositories"] = ComponentHealth{Healthy: true}
	} else {
		status.Components["repositories"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	return status
}

// initDatabase initializes the database and all repositories using providers.
func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.db = dbBundle.DB
	c.txManager = dbBundle.TxManager

	repos, err := ProvideRepositories(c.db, c.logger)
	if err != nil {
		c.db.Close()
		return err
	}

	c.repositories = repos
	return nil
}

// initExternal initializes search, email and token adapters using providers.
// The user repository doubles as the notification recipient resolver.
func (c *Container) initExternal() error {
	external, err := ProvideExternal(c.config, c.repositories.User, c.logger)
	if err != nil {
		return err
	}
	c.external = external
	return nil
}

// Getters for accessing container components

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.txManager
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// External returns the outward-facing adapters.
func (c *Container) External() *ExternalBundle {
	return c.external
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Machines returns the workflow machines.
func (c *Container) Machines() *MachineBundle {
	return c.machines
}

// Services returns the read-side application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Scheduler returns the sweep scheduler.
func (c *Container) Scheduler() *scheduler.Scheduler {
	return c.scheduler
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}
