package core

// Lifecycle and change topics published on the shell's pub/sub service.
const (
	TopicAppPubSubInitialized    = "APP_PUBSUB_INITIALIZED"
	TopicAppConfigInitialized    = "APP_CONFIG_INITIALIZED"
	TopicAppLoggingInitialized   = "APP_LOGGING_INITIALIZED"
	TopicAppAuthInitialized      = "APP_AUTH_INITIALIZED"
	TopicAppAnalyticsInitialized = "APP_ANALYTICS_INITIALIZED"
	TopicAppI18nInitialized      = "APP_I18N_INITIALIZED"
	TopicAppReady                = "APP_READY"
	TopicAppInitError            = "APP_INIT_ERROR"

	TopicConfigChanged            = "CONFIG_CHANGED"
	TopicAuthenticatedUserChanged = "AUTHENTICATED_USER_CHANGED"
	TopicLocaleChanged            = "LOCALE_CHANGED"
)
