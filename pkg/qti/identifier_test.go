package qti

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidIdentifier(t *testing.T) {
	valid := []string{"Q1", "SCORE", "_hidden", "item-ref", "a", "A_b-2"}
	for _, s := range valid {
		assert.True(t, IsValidIdentifier(s), "expected %q to be valid", s)
	}

	invalid := []string{"", "9lives", "-lead", "has space", "dot.ted", "ümlaut"}
	for _, s := range invalid {
		assert.False(t, IsValidIdentifier(s), "expected %q to be invalid", s)
	}
}

func TestParseVariableID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    VariableID
		wantErr bool
	}{
		{
			name:  "simple name",
			input: "SCORE",
			want:  VariableID{Name: "SCORE"},
		},
		{
			name:  "prefixed",
			input: "Q01.SCORE",
			want:  VariableID{Prefix: "Q01", Name: "SCORE"},
		},
		{
			name:  "prefixed with occurrence",
			input: "Q01.2.SCORE",
			want:  VariableID{Prefix: "Q01", Sequence: 2, Name: "SCORE"},
		},
		{name: "empty", input: "", wantErr: true},
		{name: "bad name", input: "1SCORE", wantErr: true},
		{name: "bad prefix", input: "1Q.SCORE", wantErr: true},
		{name: "zero occurrence", input: "Q01.0.SCORE", wantErr: true},
		{name: "negative occurrence", input: "Q01.-1.SCORE", wantErr: true},
		{name: "non numeric middle", input: "Q01.x.SCORE", wantErr: true},
		{name: "too many parts", input: "a.1.b.c", wantErr: true},
		{name: "trailing dot", input: "Q01.", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVariableID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrMalformedIdentifier)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVariableIDAccessors(t *testing.T) {
	simple := VariableID{Name: "SCORE"}
	assert.False(t, simple.Prefixed())
	assert.False(t, simple.HasSequence())
	assert.Equal(t, "SCORE", simple.String())

	prefixed := VariableID{Prefix: "Q01", Name: "SCORE"}
	assert.True(t, prefixed.Prefixed())
	assert.False(t, prefixed.HasSequence())
	assert.Equal(t, "Q01.SCORE", prefixed.String())

	sequenced := VariableID{Prefix: "Q01", Sequence: 3, Name: "SCORE"}
	assert.True(t, sequenced.Prefixed())
	assert.True(t, sequenced.HasSequence())
	assert.Equal(t, "Q01.3.SCORE", sequenced.String())
}
