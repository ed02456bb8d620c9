package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestResolver() *RedirectResolver {
	return NewRedirectResolver(map[string]string{
		"LOAPHUONG": "/announcements/{contentId}",
		"booking":   "/bookings/{id}",
	}, "/content/{contentId}")
}

func TestResolve_ExplicitURLWins(t *testing.T) {
	r := newTestResolver()

	// Explicit redirectUrl always wins over any pattern.
	got := r.Resolve("/custom/override", "loaphuong", "announcement-123")
	assert.Equal(t, "/custom/override", got)
}

func TestResolve_ServicePattern(t *testing.T) {
	r := newTestResolver()

	got := r.Resolve("", "loaphuong", "announcement-123")
	assert.Equal(t, "/announcements/announcement-123", got)
}

func TestResolve_ServiceLookupCaseInsensitive(t *testing.T) {
	r := newTestResolver()

	tests := []string{"loaphuong", "LOAPHUONG", "LoaPhuong"}
	for _, svc := range tests {
		t.Run(svc, func(t *testing.T) {
			got := r.Resolve("", svc, "a-1")
			assert.Equal(t, "/announcements/a-1", got)
		})
	}
}

func TestResolve_IDAliasPlaceholder(t *testing.T) {
	r := newTestResolver()

	got := r.Resolve("", "booking", "b-42")
	assert.Equal(t, "/bookings/b-42", got)
}

func TestResolve_DefaultPatternFallback(t *testing.T) {
	r := newTestResolver()

	got := r.Resolve("", "unknown-service", "c-7")
	assert.Equal(t, "/content/c-7", got)
}

func TestResolve_NoContentIDNoRedirect(t *testing.T) {
	r := newTestResolver()

	got := r.Resolve("", "loaphuong", "")
	assert.Empty(t, got, "pattern resolution requires a contentId")
}

func TestResolve_NoPatternsNoDefault(t *testing.T) {
	r := NewRedirectResolver(nil, "")

	got := r.Resolve("", "loaphuong", "a-1")
	assert.Empty(t, got)
}

func TestResolve_PrecedenceOrder(t *testing.T) {
	r := newTestResolver()

	// explicit override > service pattern > default pattern > none
	assert.Equal(t, "/x", r.Resolve("/x", "loaphuong", "a-1"))
	assert.Equal(t, "/announcements/a-1", r.Resolve("", "loaphuong", "a-1"))
	assert.Equal(t, "/content/a-1", r.Resolve("", "other", "a-1"))
	assert.Equal(t, "", r.Resolve("", "other", ""))
}
