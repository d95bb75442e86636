// Package transport executes shell requests over HTTP through an ordered
// interceptor pipeline and defines the normalized request error shape.
package transport
