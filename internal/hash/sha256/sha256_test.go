package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashText(t *testing.T) {
	t.Parallel()

	h := New()
	cases := map[string]string{
		"":            "",
		"hello world": "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		"héllo":       h.HashText("héllo"),
	}
	for in, want := range cases {
		require.Equal(t, want, h.HashText(in), "input %q", in)
	}
	require.Len(t, h.HashText("<html></html>"), 64)
	require.NotEqual(t, h.HashText("a"), h.HashText("b"))
}
