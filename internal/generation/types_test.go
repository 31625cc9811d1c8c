package generation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidRequestID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"valid lowercase", "6fa459ea-ee8a-3ca4-894e-db77e160355e", true},
		{"valid uppercase", "6FA459EA-EE8A-3CA4-894E-DB77E160355E", true},
		{"valid v4", "16fd2706-8baf-433b-82eb-8c7fada847da", true},
		{"wrong version", "6fa459ea-ee8a-0ca4-894e-db77e160355e", false},
		{"wrong variant", "6fa459ea-ee8a-3ca4-c94e-db77e160355e", false},
		{"braced form", "{6fa459ea-ee8a-3ca4-894e-db77e160355e}", false},
		{"urn form", "urn:uuid:6fa459ea-ee8a-3ca4-894e-db77e160355e", false},
		{"no hyphens", "6fa459eaee8a3ca4894edb77e160355e", false},
		{"too short", "6fa459ea-ee8a-3ca4-894e", false},
		{"not hex", "6fa459ea-ee8a-3ca4-894e-db77e160355g", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, ValidRequestID(tt.id))
		})
	}
}

func TestRequestValidate(t *testing.T) {
	t.Parallel()

	valid := Request{
		RequestID: "16fd2706-8baf-433b-82eb-8c7fada847da",
		Prompt:    "a lighthouse at dusk",
	}
	require.NoError(t, valid.Validate())

	missingPrompt := valid
	missingPrompt.Prompt = ""
	require.ErrorIs(t, missingPrompt.Validate(), ErrValidation)

	missingID := valid
	missingID.RequestID = ""
	require.ErrorIs(t, missingID.Validate(), ErrValidation)

	badID := valid
	badID.RequestID = "not-a-guid"
	err := badID.Validate()
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "valid GUID")
}

func TestRequestApplyDefaults(t *testing.T) {
	t.Parallel()

	req := Request{RequestID: "x", Prompt: "y"}
	req.ApplyDefaults()
	require.Equal(t, DefaultWidth, req.Width)
	require.Equal(t, DefaultHeight, req.Height)

	sized := Request{Width: 1024, Height: 768}
	sized.ApplyDefaults()
	require.Equal(t, 1024, sized.Width)
	require.Equal(t, 768, sized.Height)
}

func TestJobStatusTerminal(t *testing.T) {
	t.Parallel()

	require.True(t, JobStatusCompleted.Terminal())
	require.True(t, JobStatusFailed.Terminal())
	require.True(t, JobStatusCancelled.Terminal())
	require.False(t, JobStatusSubmitted.Terminal())
	require.False(t, JobStatus("IN_QUEUE").Terminal())
	require.False(t, JobStatus("IN_PROGRESS").Terminal())
}
