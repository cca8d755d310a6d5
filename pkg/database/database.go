// Package database holds the Postgres-backed adapters that sit beside
// pkg/store/postgres but outside the store.Store contract: API key
// lookup for pkg/auth, and per-tenant config overrides for pkg/config.
// Both share the connection pool opened by pkg/store/postgres.New,
// rather than opening a second pool, since the tables they touch
// (api_keys, config_kv) are created by that package's own embedded
// migrations.
package database
