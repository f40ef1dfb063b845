// Package app composes the badge service into a running application.
//
// The package sits above the business logic and is responsible for wiring,
// not behavior:
//
//	internal/app/
//	├── application.go      # Application struct, store defaulting, lifecycle
//	├── domain/             # Pure data models (badge state, flair, geometry)
//	├── storage/            # Store interfaces plus memory and postgres impls
//	├── services/           # Business logic (flair, compositor, badges, generator)
//	├── httpapi/            # HTTP handlers, middleware, error mapping
//	├── system/             # Lifecycle manager
//	└── metrics/            # Prometheus instrumentation
//
// Services receive their dependencies through New; nothing in this tree
// reaches for globals or environment variables. cmd/badgeserver owns config
// loading and hands the resolved collaborators to app.New.
package app
