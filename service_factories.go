package appshell

import (
	"github.com/goliatone/go-appshell/adapters/gologger"
	"github.com/goliatone/go-appshell/analytics"
	"github.com/goliatone/go-appshell/auth"
	"github.com/goliatone/go-appshell/config"
	"github.com/goliatone/go-appshell/core"
	"github.com/goliatone/go-appshell/pubsub"
)

// Catalog names of the built-in implementations.
const (
	ConfigMemory  = "memory"
	LoggingGlog   = "glog"
	PubSubMemory  = "memory"
	AnalyticsHTTP = "http"
	AuthLMS       = "lms"
)

func ConfigFactory(opts core.ServiceOptions) (any, error) {
	return config.New(opts)
}

func LoggingFactory(opts core.ServiceOptions) (any, error) {
	return gologger.New(opts)
}

func PubSubFactory(opts core.ServiceOptions) (any, error) {
	return pubsub.New(opts)
}

func AnalyticsFactory(opts core.ServiceOptions) (any, error) {
	return analytics.New(opts)
}

func AuthFactory(opts core.ServiceOptions) (any, error) {
	return auth.New(opts)
}

// RegisterDefaultFactories adds the built-in implementations to catalog.
func RegisterDefaultFactories(catalog *core.Catalog) error {
	entries := []struct {
		kind    core.Kind
		name    string
		factory core.Factory
	}{
		{core.KindConfig, ConfigMemory, ConfigFactory},
		{core.KindLogging, LoggingGlog, LoggingFactory},
		{core.KindPubSub, PubSubMemory, PubSubFactory},
		{core.KindAnalytics, AnalyticsHTTP, AnalyticsFactory},
		{core.KindAuth, AuthLMS, AuthFactory},
	}
	for _, entry := range entries {
		if err := catalog.Register(entry.kind, entry.name, entry.factory); err != nil {
			return err
		}
	}
	return nil
}

func DefaultCatalog() (*core.Catalog, error) {
	catalog := core.NewCatalog()
	if err := RegisterDefaultFactories(catalog); err != nil {
		return nil, err
	}
	return catalog, nil
}
