package i18n

import (
	"strings"
	"sync"

	"github.com/goliatone/go-appshell/core"
	"golang.org/x/text/language"
)

// Publisher is the slice of the shell used to announce LOCALE_CHANGED.
type Publisher interface {
	PublishIfConfigured(topic string, data any) bool
}

type LocaleChange struct {
	Previous string
	Current  string
}

// rtlLanguages holds base languages written right to left.
var rtlLanguages = map[string]struct{}{
	"ar": {}, "dv": {}, "fa": {}, "he": {}, "ku": {}, "ps": {}, "sd": {}, "ug": {}, "ur": {}, "yi": {},
}

// Service negotiates the active locale against the supported set. Message
// catalogs are out of scope.
type Service struct {
	mu         sync.RWMutex
	supported  []language.Tag
	matcher    language.Matcher
	current    language.Tag
	cookieName string
	publisher  Publisher
}

// NewService builds the supported set from cfg. The default locale is always
// supported and wins ties.
func NewService(cfg core.Config, publisher Publisher) (*Service, error) {
	fallback := strings.TrimSpace(cfg.DefaultLocale)
	if fallback == "" {
		fallback = "en"
	}
	defaultTag, err := language.Parse(fallback)
	if err != nil {
		return nil, core.BadInputError("i18n: invalid default_locale " + fallback)
	}
	supported := []language.Tag{defaultTag}
	seen := map[string]struct{}{defaultTag.String(): {}}
	for _, raw := range cfg.SupportedLocales {
		tag, err := language.Parse(strings.TrimSpace(raw))
		if err != nil {
			return nil, core.BadInputError("i18n: invalid supported locale " + raw)
		}
		if _, ok := seen[tag.String()]; ok {
			continue
		}
		seen[tag.String()] = struct{}{}
		supported = append(supported, tag)
	}
	cookieName := cfg.LanguagePreferenceCookieName
	if strings.TrimSpace(cookieName) == "" {
		cookieName = core.DefaultLanguageCookieName
	}
	return &Service{
		supported:  supported,
		matcher:    language.NewMatcher(supported),
		current:    defaultTag,
		cookieName: cookieName,
		publisher:  publisher,
	}, nil
}

// CookieName is the language preference cookie this service reads.
func (s *Service) CookieName() string {
	return s.cookieName
}

func (s *Service) SupportedLocales() []string {
	out := make([]string, 0, len(s.supported))
	for _, tag := range s.supported {
		out = append(out, tag.String())
	}
	return out
}

func (s *Service) Locale() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.String()
}

// Negotiate picks a supported locale. A supported preference cookie wins over
// the Accept-Language header; anything unmatched falls back to the default.
func (s *Service) Negotiate(acceptLanguage string, cookie string) string {
	if cookie = strings.TrimSpace(cookie); cookie != "" {
		if tag, err := language.Parse(cookie); err == nil {
			if matched, ok := s.match(tag); ok {
				return matched.String()
			}
		}
	}
	preferred, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(preferred) == 0 {
		return s.supported[0].String()
	}
	matched, ok := s.match(preferred...)
	if !ok {
		return s.supported[0].String()
	}
	return matched.String()
}

// SetLocale switches the active locale to the closest supported match and
// announces LOCALE_CHANGED when it changes.
func (s *Service) SetLocale(locale string) (string, error) {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		return "", core.BadInputError("i18n: invalid locale " + locale)
	}
	matched, ok := s.match(tag)
	if !ok {
		matched = s.supported[0]
	}
	s.mu.Lock()
	previous := s.current
	s.current = matched
	s.mu.Unlock()
	if previous != matched && s.publisher != nil {
		s.publisher.PublishIfConfigured(core.TopicLocaleChanged, LocaleChange{
			Previous: previous.String(),
			Current:  matched.String(),
		})
	}
	return matched.String(), nil
}

func (s *Service) match(tags ...language.Tag) (language.Tag, bool) {
	_, index, confidence := s.matcher.Match(tags...)
	if confidence == language.No {
		return language.Tag{}, false
	}
	return s.supported[index], true
}

// IsRTL reports whether locale is written right to left.
func IsRTL(locale string) bool {
	_, ok := rtlLanguages[PrimaryLanguageSubtag(locale)]
	return ok
}

// PrimaryLanguageSubtag returns the base language, e.g. "pt" for "pt-BR".
func PrimaryLanguageSubtag(locale string) string {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		return strings.ToLower(strings.SplitN(strings.TrimSpace(locale), "-", 2)[0])
	}
	base, _ := tag.Base()
	return base.String()
}

// IsRTL reports the direction of the active locale.
func (s *Service) IsRTL() bool {
	return IsRTL(s.Locale())
}
