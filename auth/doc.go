// Package auth provides the default authentication service: per-origin CSRF
// token caching, JWT cookie refresh, and authenticated and public HTTP clients
// built on the transport pipeline.
package auth
