// Package config provides the default ConfigService and the raw loaders it is
// built from: dotenv and environment variables, YAML files, and the remote
// runtime config document. Watcher merges file edits at runtime.
package config
