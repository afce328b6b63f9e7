package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveRefOrderedLookup(t *testing.T) {
	canonical := map[string]string{"legacy-1": "new-1"}
	byPhone := map[string]string{"9000000001": "new-2", "legacy-1": "wrong"}
	byEmail := map[string]string{"asha@example.com": "new-3"}

	// The canonical mapping wins over later tables.
	got := ResolveRef("legacy-1", canonical, byPhone, byEmail)
	assert.True(t, got.Resolved)
	assert.Equal(t, "new-1", got.ID)

	// Alternate keys are consulted in declared order.
	got = ResolveRef("9000000001", canonical, byPhone, byEmail)
	assert.True(t, got.Resolved)
	assert.Equal(t, "new-2", got.ID)

	got = ResolveRef("asha@example.com", canonical, byPhone, byEmail)
	assert.True(t, got.Resolved)
	assert.Equal(t, "new-3", got.ID)
}

func TestResolveRefUnresolved(t *testing.T) {
	canonical := map[string]string{"legacy-1": "new-1"}

	got := ResolveRef("unknown", canonical)
	assert.False(t, got.Resolved)
	assert.Empty(t, got.ID)

	assert.Equal(t, Unresolved, ResolveRef("", canonical))
}
