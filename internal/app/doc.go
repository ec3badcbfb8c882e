// Package app composes the storefront managers into a running application.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, wiring and lifecycle
//	├── domain/             # Domain models (product, order, application, wallet, profile, audit)
//	├── storage/            # Store interfaces plus memory, postgres, supabase and mongo backends
//	├── services/           # Managers holding the business rules
//	├── httpapi/            # HTTP handlers and routing
//	├── idempotency/        # Idempotency-Key replay middleware
//	├── events/             # Dashboard event hub
//	├── metrics/            # Prometheus metrics
//	├── system/             # Lifecycle management
//	└── runtime/            # Process bootstrap from configuration
//
// # Dependency Direction
//
//	cmd/storefront/
//	      │
//	      ▼
//	internal/app/runtime ──► internal/app (composition)
//	                                │
//	                                ├──► services/ ──► domain/, storage/ interfaces
//	                                └──► storage/ backends
//
// Adding a collection means a domain model, a store interface in
// storage/interfaces.go, implementations in every backend, a manager under
// services/, wiring in New and routes in httpapi.
package app
