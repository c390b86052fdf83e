// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: All default values that appear in multiple places should be defined here.
// This makes configuration more maintainable and auditable.
package config

import "time"

// =============================================================================
// LEDGER DEFAULTS
// =============================================================================

// DefaultCollectionPrefix prefixes every per-project ledger collection name.
// Overridable via the COLLECTION_NAME_PREFIX environment variable.
const DefaultCollectionPrefix = "budget-notifications"

// =============================================================================
// STORE DEFAULTS
// =============================================================================

// DefaultStoreDriver selects the ledger store backend when none is configured.
const DefaultStoreDriver = "sqlite"

// DefaultSQLitePath is the default SQLite database location.
const DefaultSQLitePath = "budget-sentinel.db"

// DefaultMongoURI is the default MongoDB connection string.
const DefaultMongoURI = "mongodb://localhost:27017"

// DefaultMongoDatabase is the default MongoDB database name.
const DefaultMongoDatabase = "budget_sentinel"

// DefaultStoreConnectTimeout bounds store connection establishment at startup.
const DefaultStoreConnectTimeout = 10 * time.Second

// =============================================================================
// BILLING CONTROL DEFAULTS
// =============================================================================

// DefaultBillingAPIBaseURL is the billing control API base URL.
const DefaultBillingAPIBaseURL = "https://cloudbilling.googleapis.com"

// DefaultBillingTimeout is the HTTP timeout for billing control calls.
const DefaultBillingTimeout = 15 * time.Second

// =============================================================================
// HTTP SERVER DEFAULTS
// =============================================================================

// DefaultServerPort is the port the event server listens on.
const DefaultServerPort = 8090

// DefaultReadTimeout is the HTTP server read timeout.
const DefaultReadTimeout = 30 * time.Second

// DefaultWriteTimeout is the HTTP server write timeout.
const DefaultWriteTimeout = 30 * time.Second

// DefaultShutdownTimeout bounds graceful shutdown on SIGINT/SIGTERM.
const DefaultShutdownTimeout = 10 * time.Second

// MaxEventBodySize is the maximum accepted push delivery body (1MB).
// Budget notification payloads are tiny; anything larger is garbage.
const MaxEventBodySize = 1 << 20
