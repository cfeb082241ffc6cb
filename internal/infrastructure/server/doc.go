// Package server assembles the sitepack HTTP server from configuration:
// crawler, post-processor, packager, mirror service, optional sessions,
// and the gin middleware chain.
package server
