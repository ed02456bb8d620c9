package events

import "strings"

// Placeholder aliases substituted with the event's contentId when resolving
// a redirect URL pattern.
const (
	placeholderContentID = "{contentId}"
	placeholderID        = "{id}"
)

// RedirectResolver resolves the deep-link surfaced to an end user when they
// act on a delivered notification. Patterns are keyed by uppercased service
// name and contain a {contentId} (alias {id}) placeholder. Supplied at
// process start, read-only thereafter.
type RedirectResolver struct {
	patterns       map[string]string
	defaultPattern string
}

// NewRedirectResolver builds a resolver from a service-to-pattern mapping
// and a default pattern. Keys are uppercased internally so lookups are
// case-insensitive.
func NewRedirectResolver(patterns map[string]string, defaultPattern string) *RedirectResolver {
	upper := make(map[string]string, len(patterns))
	for svc, tmpl := range patterns {
		upper[strings.ToUpper(svc)] = tmpl
	}
	return &RedirectResolver{
		patterns:       upper,
		defaultPattern: defaultPattern,
	}
}

// Resolve returns the redirect URL for a notification. Precedence is a
// strict contract: explicit override > service pattern > default pattern >
// none. An explicit URL is used verbatim. Pattern resolution requires a
// contentId; without one the redirect is absent (empty string).
func (r *RedirectResolver) Resolve(explicitURL, sourceService, contentID string) string {
	if explicitURL != "" {
		return explicitURL
	}
	if contentID == "" {
		return ""
	}

	pattern, ok := r.patterns[strings.ToUpper(sourceService)]
	if !ok {
		pattern = r.defaultPattern
	}
	if pattern == "" {
		return ""
	}

	return substitute(pattern, contentID)
}

// substitute replaces every placeholder alias in the pattern with contentID.
func substitute(pattern, contentID string) string {
	out := strings.ReplaceAll(pattern, placeholderContentID, contentID)
	return strings.ReplaceAll(out, placeholderID, contentID)
}
