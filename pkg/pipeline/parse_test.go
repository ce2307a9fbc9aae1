package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain text untouched",
			in:   "  def handler():\n    pass  ",
			want: "def handler():\n    pass",
		},
		{
			name: "fence with language tag",
			in:   "```python\ndef handler():\n    pass\n```",
			want: "def handler():\n    pass\n",
		},
		{
			name: "fence without language tag",
			in:   "```\n{\"a\": 1}\n```",
			want: "{\"a\": 1}\n",
		},
		{
			name: "missing closing fence",
			in:   "```json\n{\"a\": 1}",
			want: "{\"a\": 1}",
		},
		{
			name: "single line fence",
			in:   "```{\"a\": 1}```",
			want: "{\"a\": 1}",
		},
		{
			name: "inner fences preserved",
			in:   "```markdown\n# Title\n\n```go\ncode\n```\n```",
			want: "# Title\n\n```go\ncode\n```\n",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFences(tt.in))
		})
	}
}

func TestDecodeResponse(t *testing.T) {
	type shape struct {
		Summary string `json:"root_cause_summary"`
	}

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{
			name: "bare object",
			in:   `{"root_cause_summary": "missing nil check"}`,
			want: "missing nil check",
		},
		{
			name: "fenced object",
			in:   "```json\n{\"root_cause_summary\": \"missing nil check\"}\n```",
			want: "missing nil check",
		},
		{
			name: "prose around the object",
			in:   `Here is my analysis: {"root_cause_summary": "missing nil check"} Hope that helps!`,
			want: "missing nil check",
		},
		{
			name: "object wrapped in array",
			in:   `[{"root_cause_summary": "missing nil check"}]`,
			want: "missing nil check",
		},
		{
			name:    "empty array",
			in:      `[]`,
			wantErr: true,
		},
		{
			name:    "empty completion",
			in:      "   ",
			wantErr: true,
		},
		{
			name:    "not json at all",
			in:      "I could not determine the cause.",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v shape
			err := decodeResponse(tt.in, &v)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Summary)
		})
	}
}
