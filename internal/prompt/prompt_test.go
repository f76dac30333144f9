package prompt

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptString(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("  hello world \n"), &out)

	got, err := p.PromptString("Name: ")
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)
	assert.Equal(t, "Name: ", out.String())
}

func TestPromptSecret_NonInteractive(t *testing.T) {
	p := NewPrompter(strings.NewReader("s3cret\n"), io.Discard)
	assert.False(t, p.Interactive())

	got, err := p.PromptSecret("Secret: ")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)
}

func TestPromptConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"maybe\n", false},
	}
	for _, tc := range tests {
		p := NewPrompter(strings.NewReader(tc.input), io.Discard)
		got, err := p.PromptConfirm("Continue?")
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "input %q", tc.input)
	}
}

func TestChoose(t *testing.T) {
	options := []string{"Retry", "View logs", "Exit"}

	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"number", "2\n", 1},
		{"prefix", "ex\n", 2},
		{"default", "\n", 0},
		{"last line without newline", "3", 2},
		{"invalid then valid", "9\nretry\n", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			p := NewPrompter(strings.NewReader(tc.input), &out)
			got, err := p.Choose(context.Background(), "Backend stopped", options, 0)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Contains(t, out.String(), "1) Retry")
		})
	}
}

func TestChoose_EOF(t *testing.T) {
	p := NewPrompter(strings.NewReader(""), io.Discard)
	_, err := p.Choose(context.Background(), "?", []string{"a", "b"}, 1)
	assert.ErrorIs(t, err, ErrNoChoice)
}

func TestChoose_ContextCancelled(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	p := NewPrompter(r, io.Discard)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Choose(ctx, "?", []string{"a", "b"}, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMatchOption_Ambiguous(t *testing.T) {
	_, ok := matchOption("re", []string{"Retry", "Restart"})
	assert.False(t, ok)

	idx, ok := matchOption("ret", []string{"Retry", "Restart"})
	assert.True(t, ok)
	assert.Equal(t, 0, idx)
}
