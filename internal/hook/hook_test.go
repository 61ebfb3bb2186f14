package hook

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	tests := []struct {
		name string
		tmpl []string
		vars map[string]string
		want []string
	}{
		{
			name: "plain",
			tmpl: []string{"vss", "create"},
			want: []string{"vss", "create"},
		},
		{
			name: "placeholders",
			tmpl: []string{"mount", "-t", "cifs", "{remote}", "{local}"},
			vars: map[string]string{"remote": `//srv/share`, "local": "/mnt/b1"},
			want: []string{"mount", "-t", "cifs", "//srv/share", "/mnt/b1"},
		},
		{
			name: "embedded and repeated",
			tmpl: []string{"snap", "--name=beamsplit-{id}", "{source}:{source}"},
			vars: map[string]string{"id": "42", "source": "C:"},
			want: []string{"snap", "--name=beamsplit-42", "C::C:"},
		},
		{
			name: "unclosed brace kept",
			tmpl: []string{"echo", "a{b"},
			want: []string{"echo", "a{b"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Expand(tt.tmpl, tt.vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpand_Errors(t *testing.T) {
	_, err := Expand(nil, nil)
	require.ErrorIs(t, err, ErrEmptyCommand)

	_, err = Expand([]string{" "}, nil)
	require.ErrorIs(t, err, ErrEmptyCommand)

	_, err = Expand([]string{"echo", "{nope}"}, map[string]string{"source": "x"})
	require.ErrorContains(t, err, "{nope}")
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "/snap/1", Result{Stdout: "\n  /snap/1  \nmore\n"}.FirstLine())
	assert.Empty(t, Result{Stdout: "\n \n"}.FirstLine())
}

func TestRun(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
	res, err := RunTemplate(context.Background(),
		[]string{"/bin/sh", "-c", "echo {word}; echo oops >&2"},
		map[string]string{"word": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", res.FirstLine())
	assert.Equal(t, "oops\n", res.Stderr)
	assert.Equal(t, 0, res.ExitCode)
}

func TestRun_Failure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
	res, err := Run(context.Background(), []string{"/bin/sh", "-c", "echo denied >&2; exit 3"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
	assert.Equal(t, 3, res.ExitCode)

	_, err = Run(context.Background(), nil)
	require.ErrorIs(t, err, ErrEmptyCommand)
}
