package input

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseList(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		want      []int
		badTokens []string
	}{
		{"braces", "{16,1,2,0,4,2,7,1,2,14}", DefaultPositions, nil},
		{"plain", "3,4,5", []int{3, 4, 5}, nil},
		{"whitespace and newline", " { 3 , 4,\n5 }\n", []int{3, 4, 5}, nil},
		{"trailing comma", "1,2,", []int{1, 2}, nil},
		{"bad tokens skipped", "1,x,2,3.5,-4,5", []int{1, 2, 5}, []string{"x", "3.5", "-4"}},
		{"empty", "", nil, nil},
		{"empty braces", "{}", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, warnings, err := ParseList(strings.NewReader(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			var tokens []string
			for _, w := range warnings {
				tokens = append(tokens, w.Token)
			}
			assert.Equal(t, tt.badTokens, tokens)
		})
	}
}

func TestParseList_WarningDetails(t *testing.T) {
	_, warnings, err := ParseList(strings.NewReader("1,abc,-2"))
	require.NoError(t, err)
	require.Len(t, warnings, 2)

	assert.Equal(t, 1, warnings[0].Index)
	assert.ErrorIs(t, warnings[0], strconv.ErrSyntax)
	assert.Contains(t, warnings[0].Error(), `"abc"`)

	assert.Equal(t, 2, warnings[1].Index)
	assert.ErrorIs(t, warnings[1], errNegative)
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crabs.txt")
	require.NoError(t, os.WriteFile(path, []byte("{16,1,2,0,4,2,7,1,2,14}"), 0644))

	got, warnings, err := ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, DefaultPositions, got)

	_, _, err = ReadFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestCollect(t *testing.T) {
	in := strings.NewReader("16\n\nfoo\n1\n\n")
	var out bytes.Buffer

	got, warnings, err := Collect(context.Background(), in, &out, MinInteractive)
	require.NoError(t, err)
	assert.Equal(t, []int{16, 1}, got)
	require.Len(t, warnings, 1)
	assert.Equal(t, "foo", warnings[0].Token)

	assert.Contains(t, out.String(), "At least 2 positions are required.")
	assert.Contains(t, out.String(), "Not a valid position")
}

func TestCollect_EOF(t *testing.T) {
	var out bytes.Buffer

	got, _, err := Collect(context.Background(), strings.NewReader("3\n4\n5"), &out, MinInteractive)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 5}, got)

	_, _, err = Collect(context.Background(), strings.NewReader("3\n"), &out, MinInteractive)
	assert.ErrorIs(t, err, ErrNotEnoughInput)
}

func TestCollect_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Collect(ctx, strings.NewReader("1\n2\n\n"), &bytes.Buffer{}, MinInteractive)
	assert.ErrorIs(t, err, context.Canceled)
}
