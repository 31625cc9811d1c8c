package pdf

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDisabledRendererReturnsSentinel(t *testing.T) {
	t.Parallel()

	var r Renderer = Disabled{}
	_, err := r.Render(context.Background(), "<html><body>hi</body></html>")
	require.ErrorIs(t, err, ErrRendererDisabled)
}
