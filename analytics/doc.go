// Package analytics is the default AnalyticsService with a rate limited sender
// and an outbox for events that could not be delivered.
package analytics
