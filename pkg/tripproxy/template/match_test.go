package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestFindQuery tests query placeholder matching offsets.
func TestFindQuery(t *testing.T) {
	t.Run("records offsets in the original string", func(t *testing.T) {
		occ := FindQuery("{a}-{b}-{a}", map[string]string{"a": "1", "b": "22"}, nil)
		assert.Equal(t, []Occurrence{
			{Key: "a", Value: "1", Start: 0, End: 3, Class: ClassQuery, Found: true},
			{Key: "a", Value: "1", Start: 8, End: 11, Class: ClassQuery, Found: true},
			{Key: "b", Value: "22", Start: 4, End: 7, Class: ClassQuery, Found: true},
		}, occ)
	})

	t.Run("skips dollar-prefixed braces", func(t *testing.T) {
		occ := FindQuery("${a}{a}", map[string]string{"a": "x"}, nil)
		assert.Equal(t, []Occurrence{
			{Key: "a", Value: "x", Start: 4, End: 7, Class: ClassQuery, Found: true},
		}, occ)
	})

	t.Run("applies the escaper once per key", func(t *testing.T) {
		calls := 0
		escape := func(s string) string {
			calls++
			return "<" + s + ">"
		}
		occ := FindQuery("{k}{k}{k}", map[string]string{"k": "v"}, escape)
		assert.Len(t, occ, 3)
		assert.Equal(t, "<v>", occ[2].Value)
		assert.Equal(t, 1, calls)
	})

	t.Run("no braces", func(t *testing.T) {
		assert.Nil(t, FindQuery("plain", map[string]string{"a": "1"}, nil))
	})

	t.Run("empty key", func(t *testing.T) {
		occ := FindQuery("a{}b", map[string]string{"": "x"}, nil)
		assert.Equal(t, []Occurrence{
			{Key: "", Value: "x", Start: 1, End: 3, Class: ClassQuery, Found: true},
		}, occ)
	})

	t.Run("invalid UTF-8 and metacharacter keys", func(t *testing.T) {
		query := map[string]string{"\xff": "1", ".*": "2", "a": "3"}
		var occ []Occurrence
		assert.NotPanics(t, func() {
			occ = FindQuery("{a}{\xff}{.*}", query, nil)
		})
		assert.Equal(t, []Occurrence{
			{Key: ".*", Value: "2", Start: 6, End: 10, Class: ClassQuery, Found: true},
			{Key: "a", Value: "3", Start: 0, End: 3, Class: ClassQuery, Found: true},
			{Key: "\xff", Value: "1", Start: 3, End: 6, Class: ClassQuery, Found: true},
		}, occ)
	})
}

// TestFindEnv tests environment placeholder matching.
func TestFindEnv(t *testing.T) {
	lookup := MapLookup(map[string]string{"HOST": "otp.local"})

	occ := FindEnv("http://${HOST}/${MISSING}/{q}", lookup)
	assert.Equal(t, []Occurrence{
		{Key: "HOST", Value: "otp.local", Start: 7, End: 14, Class: ClassEnv, Found: true},
		{Key: "MISSING", Value: "", Start: 15, End: 25, Class: ClassEnv, Found: false},
	}, occ)

	t.Run("keys cannot contain braces or dollars", func(t *testing.T) {
		assert.Nil(t, FindEnv("${a{b}", lookup))
		assert.Equal(t, 1, len(FindEnv("${a$b}${c}", lookup)))
	})

	t.Run("nil lookup resolves nothing", func(t *testing.T) {
		occ := FindEnv("${HOST}", nil)
		assert.Len(t, occ, 1)
		assert.False(t, occ[0].Found)
	})
}

// TestMerge tests ordering and filtering of merged occurrences.
func TestMerge(t *testing.T) {
	query := []Occurrence{
		{Key: "q", Start: 10, End: 13, Class: ClassQuery},
		{Key: "tie", Start: 4, End: 7, Class: ClassQuery},
		{Key: "neg", Start: -1, End: 2, Class: ClassQuery},
	}
	env := []Occurrence{
		{Key: "e", Start: 0, End: 4, Class: ClassEnv},
		{Key: "tie", Start: 4, End: 8, Class: ClassEnv},
	}

	merged := Merge(query, env)
	keys := make([]string, 0, len(merged))
	classes := make([]Class, 0, len(merged))
	for _, o := range merged {
		keys = append(keys, o.Key)
		classes = append(classes, o.Class)
	}
	assert.Equal(t, []string{"e", "tie", "tie", "q"}, keys)
	assert.Equal(t, []Class{ClassEnv, ClassQuery, ClassEnv, ClassQuery}, classes)
}

// TestRewrite tests the cursor-based rewrite pass.
func TestRewrite(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		occ      []Occurrence
		expected string
	}{
		{
			name:     "no occurrences",
			input:    "unchanged",
			expected: "unchanged",
		},
		{
			name:  "shorter and longer values",
			input: "{a}-{b}-{a}",
			occ: []Occurrence{
				{Value: "1", Start: 0, End: 3},
				{Value: "22", Start: 4, End: 7},
				{Value: "1", Start: 8, End: 11},
			},
			expected: "1-22-1",
		},
		{
			name:  "value longer than placeholder",
			input: "x${K}y",
			occ: []Occurrence{
				{Value: "a-much-longer-value", Start: 1, End: 5},
			},
			expected: "xa-much-longer-valuey",
		},
		{
			name:  "overlapping occurrence is skipped",
			input: "abcdef",
			occ: []Occurrence{
				{Value: "X", Start: 0, End: 3},
				{Value: "Y", Start: 2, End: 4},
				{Value: "Z", Start: 4, End: 5},
			},
			expected: "XdZf",
		},
		{
			name:  "out of range occurrence is skipped",
			input: "abc",
			occ: []Occurrence{
				{Value: "X", Start: 1, End: 9},
			},
			expected: "abc",
		},
		{
			name:  "empty value",
			input: "key=${K}&x=1",
			occ: []Occurrence{
				{Value: "", Start: 4, End: 8},
			},
			expected: "key=&x=1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Rewrite(tt.input, tt.occ))
		})
	}
}

// TestClassString tests class names.
func TestClassString(t *testing.T) {
	assert.Equal(t, "query", ClassQuery.String())
	assert.Equal(t, "env", ClassEnv.String())
	assert.Equal(t, "unknown", Class(9).String())
}
