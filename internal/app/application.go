package app

import (
	"context"
	"fmt"
	"time"

	"github.com/muraguri00/zalora-luxury/internal/app/events"
	"github.com/muraguri00/zalora-luxury/internal/app/services/applications"
	"github.com/muraguri00/zalora-luxury/internal/app/services/auditlog"
	"github.com/muraguri00/zalora-luxury/internal/app/services/inventory"
	"github.com/muraguri00/zalora-luxury/internal/app/services/orders"
	"github.com/muraguri00/zalora-luxury/internal/app/services/profiles"
	"github.com/muraguri00/zalora-luxury/internal/app/services/recovery"
	"github.com/muraguri00/zalora-luxury/internal/app/services/wallets"
	"github.com/muraguri00/zalora-luxury/internal/app/storage"
	"github.com/muraguri00/zalora-luxury/internal/app/storage/memory"
	"github.com/muraguri00/zalora-luxury/internal/app/system"
	"github.com/muraguri00/zalora-luxury/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Products     storage.ProductStore
	Orders       storage.OrderStore
	Applications storage.ApplicationStore
	Wallets      storage.WalletStore
	Profiles     storage.ProfileStore
	Audit        storage.AuditStore

	// AuditMirrors receive a copy of every entry appended to Audit.
	AuditMirrors []storage.AuditStore
	// Reconciler, when set, is swept on RecoverySchedule.
	Reconciler storage.Reconciler
}

// Options tune optional collaborators.
type Options struct {
	QR               wallets.QRGenerator
	Events           *events.Hub
	RecoverySchedule string
	RecoveryStaleAge time.Duration
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Inventory    *inventory.Service
	Orders       *orders.Service
	Applications *applications.Service
	Wallets      *wallets.Service
	Profiles     *profiles.Service
	Audit        *auditlog.Service
	Events       *events.Hub
}

// StoresFrom fills every store slot from a backend implementing all of them.
func StoresFrom(backend interface {
	storage.ProductStore
	storage.OrderStore
	storage.ApplicationStore
	storage.WalletStore
	storage.ProfileStore
	storage.AuditStore
}) Stores {
	s := Stores{
		Products:     backend,
		Orders:       backend,
		Applications: backend,
		Wallets:      backend,
		Profiles:     backend,
		Audit:        backend,
	}
	if r, ok := backend.(storage.Reconciler); ok {
		s.Reconciler = r
	}
	return s
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Products == nil {
		stores.Products = mem
	}
	if stores.Orders == nil {
		stores.Orders = mem
	}
	if stores.Applications == nil {
		stores.Applications = mem
	}
	if stores.Wallets == nil {
		stores.Wallets = mem
	}
	if stores.Profiles == nil {
		stores.Profiles = mem
	}
	if stores.Audit == nil {
		stores.Audit = mem
	}
	if opts.QR == nil {
		opts.QR = wallets.PNGGenerator{}
	}
	hub := opts.Events
	if hub == nil {
		hub = events.NewHub(0, log.Named("events"))
	}

	auditService := auditlog.New(stores.Audit, log.Named("audit"), stores.AuditMirrors...)
	inventoryService := inventory.New(stores.Products, log.Named("inventory"))
	orderService := orders.New(stores.Orders, inventoryService, log.Named("orders"))
	applicationService := applications.New(stores.Applications, log.Named("applications"))
	walletService := wallets.New(stores.Wallets, opts.QR, log.Named("wallets"))
	profileService := profiles.New(stores.Profiles, log.Named("profiles"))

	inventoryService.AttachObservers(auditService, hub)
	orderService.AttachObservers(auditService, hub)
	applicationService.AttachObservers(auditService, hub)
	walletService.AttachObservers(auditService, hub)
	profileService.AttachObservers(auditService, hub)

	manager := system.NewManager()
	for _, name := range []string{"inventory", "orders", "applications", "wallets", "profiles"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	if stores.Reconciler != nil {
		sweeper := recovery.NewSweeper(stores.Reconciler, opts.RecoverySchedule, opts.RecoveryStaleAge, log.Named("recovery"))
		if err := manager.Register(sweeper); err != nil {
			return nil, fmt.Errorf("register %s: %w", sweeper.Name(), err)
		}
	}

	return &Application{
		manager:      manager,
		log:          log,
		Inventory:    inventoryService,
		Orders:       orderService,
		Applications: applicationService,
		Wallets:      walletService,
		Profiles:     profileService,
		Audit:        auditService,
		Events:       hub,
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
