package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSkipIfNoNetwork(t *testing.T) {
	t.Setenv("INBOXSYNC_TEST_SKIP_NETWORK", "1")
	ran := t.Run("skipped", func(t *testing.T) {
		SkipIfNoNetwork(t)
		t.Fatal("should have been skipped")
	})
	require.True(t, ran)

	t.Setenv("INBOXSYNC_TEST_SKIP_NETWORK", "")
	reached := false
	t.Run("runs", func(t *testing.T) {
		SkipIfNoNetwork(t)
		reached = true
	})
	require.True(t, reached)
}
