package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeResolution(t *testing.T) {
	want := ArcSelection{SelectedArcIDs: []string{"a1", "a2"}}
	tests := []struct {
		name string
		in   any
	}{
		{"typed", want},
		{"pointer", &want},
		{"raw json", json.RawMessage(`{"selectedArcIds":["a1","a2"]}`)},
		{"bytes", []byte(`{"selectedArcIds":["a1","a2"]}`)},
		{"string", `{"selectedArcIds":["a1","a2"]}`},
		{"map", map[string]any{"selectedArcIds": []string{"a1", "a2"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeResolution[ArcSelection](CheckpointArcSelection, tt.in)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestDecodeResolution_Malformed(t *testing.T) {
	_, err := decodeResolution[Approval](CheckpointOutlineApproval, json.RawMessage(`{"approved":"yes"}`))

	var re *ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, CheckpointOutlineApproval, re.Checkpoint)
	assert.Contains(t, err.Error(), "invalid outline-approval resolution: malformed resolution")
}

func TestDecodeResolution_NilPointer(t *testing.T) {
	var p *Approval
	_, err := decodeResolution[Approval](CheckpointArticleApproval, p)
	var re *ResolutionError
	require.ErrorAs(t, err, &re)
}
