// Package pubsub is the in-memory publish/subscribe service installed in the
// shell's pub/sub slot.
package pubsub
