// Package i18n negotiates the active locale. Message catalogs and
// translation are handled by the embedding application.
package i18n
