// Package logging wraps zap for the sitepack server.
//
// New builds a JSON logger, or a colored console logger when Development is
// set. NewNop discards everything and is what tests and optional components
// fall back to.
//
// Components get their own child logger: Named scopes entries to a component
// ("mirror", "crawler", "http") and With pins fields such as a job ID.
//
//	log := logger.Named("mirror").With(zap.String("job_id", id))
//	log.Info("crawl finished", zap.Int("files", n))
//
// Close flushes buffered entries on shutdown. Sync fails with EINVAL or
// ENOTTY when the sink is a terminal; Close treats those as success.
package logging
