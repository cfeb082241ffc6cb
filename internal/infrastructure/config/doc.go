// Package config provides 12-factor configuration management for the sitepack server.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//   - Mirror: Working directory, crawl policy, depth, exclusions, cleanup
//   - Cloak: Injection mode and User-Agent allow-list
//   - Archive: Delivery mode and compression level
//   - Fetch: Outbound client timeout, retries and rate
//   - Auth: Optional bearer-token gate for /download
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST, LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - WORK_DIR, MIRROR_POLICY, MIRROR_MAX_DEPTH, MIRROR_SELECTORS, MIRROR_EXCLUDE
//   - MIRROR_PARALLELISM, MIRROR_USER_AGENT, MIRROR_TIMEOUT
//   - MIRROR_IGNORE_ASSET_ERRORS, MIRROR_COMPANION_FILE, CLEANUP_POLICY
//   - CLOAK_MODE, CLOAK_AGENTS, ARCHIVE_DELIVERY, ARCHIVE_LEVEL
//   - FETCH_TIMEOUT, FETCH_RETRIES, FETCH_RPS
//   - AUTH_ENABLED, AUTH_USERS_FILE, AUTH_SESSION_TTL
package config
