package meta

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTypeCanonical(t *testing.T) {
	cases := []struct {
		in   string
		want Type
	}{
		{"uint32", Int(4, false)},
		{"int8", Int(1, true)},
		{"bool", Type{Kind: KindBool, Size: 1}},
		{"void", Void()},
		{"string[16]", Type{Kind: KindString, Size: 16}},
		{"buffer[8]", Type{Kind: KindBuffer, Size: 8}},
		{"struct task_struct *", PointerTo(Named(KindStruct, "struct task_struct"))},
		{"int8[4]", ArrayOf(Int(1, true), 4)},
		{"int8[]", ArrayOf(Int(1, true), 0)},
		{"enum state", Named(KindEnum, "enum state")},
		{"uint64 **", PointerTo(PointerTo(Int(8, false)))},
	}
	for _, tc := range cases {
		got, err := ParseType(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}
}

func TestParseTypeNestedArrays(t *testing.T) {
	got, err := ParseType("int16[2][3]")
	require.NoError(t, err)
	require.Equal(t, KindArray, got.Kind)
	require.Equal(t, uint32(2), got.Count)
	require.Equal(t, uint32(3), got.Elem.Count)
	require.Equal(t, uint32(12), got.Size)
	require.Equal(t, "int16[2][3]", got.String())
}

func TestParseTypeRejectsCSpellings(t *testing.T) {
	_, err := ParseType("int")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNotFound))
	require.Equal(t, "int32", KnownTypeAliases["int"])

	got, err := ParseCType("const unsigned long")
	require.NoError(t, err)
	require.Equal(t, Int(8, false), got)

	got, err = ParseCType("char *")
	require.NoError(t, err)
	require.Equal(t, PointerTo(Int(1, true)), got)
}

func TestParseTypeErrors(t *testing.T) {
	for _, in := range []string{"", "int8[x]", "struct 9bad", "uint8]"} {
		_, err := ParseType(in)
		require.Error(t, err, in)
	}
}

func TestTypeStringRoundTrip(t *testing.T) {
	for _, in := range []string{
		"uint8", "int64", "bool", "void", "string[32]", "struct foo *",
		"union bar", "enum e", "int8[4]", "uint32[2][2]", "int8 **",
	} {
		parsed, err := ParseType(in)
		require.NoError(t, err, in)
		require.Equal(t, in, parsed.String())
		again, err := ParseType(parsed.String())
		require.NoError(t, err)
		require.Equal(t, parsed, again)
	}
}
