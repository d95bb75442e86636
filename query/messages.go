package query

import "strings"

const (
	TypeGetConfig         = "appshell.query.config.get"
	TypeGetToken          = "appshell.query.csrf_token.get"
	TypeAuthenticatedUser = "appshell.query.authenticated_user.get"
)

type GetConfigMessage struct{}

func (GetConfigMessage) Type() string { return TypeGetConfig }

// GetTokenMessage asks for the CSRF token of the origin serving URL. A
// relative or unparsable URL resolves to the page origin.
type GetTokenMessage struct {
	URL string
}

func (GetTokenMessage) Type() string { return TypeGetToken }

func (m GetTokenMessage) Validate() error {
	if strings.TrimSpace(m.URL) == "" {
		return queryValidationError("url", "url is required")
	}
	return nil
}

type AuthenticatedUserMessage struct {
	// Refresh re-reads the user from the access token when supported.
	Refresh bool
}

func (AuthenticatedUserMessage) Type() string { return TypeAuthenticatedUser }
