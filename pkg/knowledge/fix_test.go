package knowledge

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFix_Valid(t *testing.T) {
	f, err := NewFix("/srv/app", "  NullPointerException:\n  cannot read field\t'name'  ", "NullPointerException", "guard the field access")
	require.NoError(t, err)

	_, err = uuid.Parse(f.ID)
	assert.NoError(t, err)
	assert.Equal(t, "/srv/app", f.ProjectPath)
	assert.Equal(t, "NullPointerException: cannot read field 'name'", f.ErrorSignature)
	assert.Equal(t, "NullPointerException", f.ErrorType)
	assert.Equal(t, "guard the field access", f.Solution)
	assert.Equal(t, []string{"NullPointerException", "name"}, f.Patterns)
	assert.False(t, f.CreatedAt.IsZero())
	assert.Equal(t, time.UTC, f.CreatedAt.Location())
}

func TestNewFix_Validation(t *testing.T) {
	tests := []struct {
		name      string
		signature string
		solution  string
		wantErr   error
	}{
		{"empty signature", "", "fix it", ErrEmptySignature},
		{"whitespace signature", "   \n\t", "fix it", ErrEmptySignature},
		{"empty solution", "KeyError: 'id'", "", ErrEmptySolution},
		{"whitespace solution", "KeyError: 'id'", "   ", ErrEmptySolution},
		{"signature too long", strings.Repeat("x", MaxSignatureLength+1), "fix it", ErrSignatureTooLong},
		{"solution too long", "KeyError: 'id'", strings.Repeat("s", MaxSolutionLength+1), ErrSolutionTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFix("/srv/app", tt.signature, "KeyError", tt.solution)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFix_ValidateRejectsBadID(t *testing.T) {
	f, err := NewFix("/srv/app", "KeyError: 'id'", "KeyError", "add the key")
	require.NoError(t, err)

	f.ID = "not-a-uuid"
	assert.ErrorIs(t, f.Validate(), ErrInvalidFixID)
}

func TestExtractPatterns(t *testing.T) {
	tests := []struct {
		name      string
		signature string
		want      []string
	}{
		{
			name:      "java exception with package path",
			signature: "java.lang.NullPointerException: Cannot invoke method on null object",
			want:      []string{"NullPointerException", "java.lang.NullPointerException"},
		},
		{
			name:      "python key error with quoted key",
			signature: "KeyError: 'user_id'",
			want:      []string{"KeyError", "user_id"},
		},
		{
			name:      "requests connection error",
			signature: "requests.exceptions.ConnectionError: HTTPSConnectionPool(host='api.example.com', port=443)",
			want:      []string{"ConnectionError", "requests.exceptions.ConnectionError", "api.example.com"},
		},
		{
			name:      "no extractable tokens",
			signature: "connection refused on port 8080",
			want:      nil,
		},
		{
			name:      "duplicates collapse",
			signature: "TimeoutError after TimeoutError retry",
			want:      []string{"TimeoutError"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractPatterns(tt.signature))
		})
	}
}

func TestExtractPatterns_Cap(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 2*maxPatterns; i++ {
		fmt.Fprintf(&b, "Err%dException ", i)
	}
	assert.Len(t, ExtractPatterns(b.String()), maxPatterns)
}

func TestEncodeDecodeFix_RoundTrip(t *testing.T) {
	f, err := NewFix("/srv/app", "TypeError: cannot unpack non-iterable NoneType object", "TypeError", "return a tuple from load_config")
	require.NoError(t, err)
	f.CreatedAt = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	f.Metadata = map[string]string{"branch": "fix/type-error-20250310-093000"}

	encoded, err := encodeFix(f)
	require.NoError(t, err)

	g, err := decodeFix(encoded)
	require.NoError(t, err)
	assert.Equal(t, f.ID, g.ID)
	assert.Equal(t, f.ProjectPath, g.ProjectPath)
	assert.Equal(t, f.ErrorSignature, g.ErrorSignature)
	assert.Equal(t, f.ErrorType, g.ErrorType)
	assert.Equal(t, f.Solution, g.Solution)
	assert.Equal(t, f.Patterns, g.Patterns)
	assert.Equal(t, f.Metadata, g.Metadata)
	assert.True(t, f.CreatedAt.Equal(g.CreatedAt))
}

func TestDecodeFix_Corrupt(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "{not json"},
		{"empty", ""},
		{"missing signature", `{"id":"8f14e45f-ea0f-4c2b-9f70-2f0cb1a6d9a1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeFix(tt.raw)
			assert.ErrorIs(t, err, ErrCorruptRecord)
		})
	}
}
