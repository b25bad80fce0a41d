package script

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStringify(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{name: "nil renders empty", input: nil, want: ""},
		{name: "string passes through", input: "plain", want: "plain"},
		{name: "bool", input: true, want: "true"},
		{name: "int", input: 42, want: "42"},
		{name: "int64", input: int64(7), want: "7"},
		{name: "float", input: 3.5, want: "3.5"},
		{name: "slice renders as json", input: []any{1, "two"}, want: `[1,"two"]`},
		{name: "map renders as json", input: map[string]any{"a": 1}, want: `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Stringify(tt.input))
		})
	}
}

func TestTruthy(t *testing.T) {
	truthy := []any{
		true,
		1,
		int64(-1),
		0.1,
		"hello",
		"0",
		[]any{1},
		map[string]any{"a": 1},
		struct{}{},
	}
	for _, v := range truthy {
		require.True(t, Truthy(v), "expected %#v to be truthy", v)
	}

	falsy := []any{
		nil,
		false,
		0,
		int64(0),
		uint(0),
		0.0,
		"",
		"false",
		"FALSE",
		[]any{},
		map[string]any{},
	}
	for _, v := range falsy {
		require.False(t, Truthy(v), "expected %#v to be falsy", v)
	}
}

func TestGoValue(t *testing.T) {
	v := NewGoValue(map[string]any{"n": 1})
	require.Equal(t, map[string]any{"n": 1}, v.Value())
	require.True(t, v.IsTruthy())
	require.Equal(t, `{"n":1}`, v.String())
}
