package template

import (
	"regexp"
	"sort"
	"strings"
)

// envPattern matches ${key} where key has no braces or dollar signs.
var envPattern = regexp.MustCompile(`\$\{([^{}$]+)\}`)

// Class identifies which kind of placeholder produced an Occurrence.
type Class int

const (
	// ClassQuery is a {key} placeholder resolved from caller query parameters.
	ClassQuery Class = iota

	// ClassEnv is a ${key} placeholder resolved from the environment lookup.
	ClassEnv
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case ClassQuery:
		return "query"
	case ClassEnv:
		return "env"
	default:
		return "unknown"
	}
}

// Occurrence is a located placeholder within a template string.
//
// Start and End are half-open byte offsets into the original template,
// never into a partially rewritten one.
type Occurrence struct {
	Key   string
	Value string
	Start int
	End   int
	Class Class

	// Found reports whether the lookup had a value for Key.
	// Query occurrences are always found.
	Found bool
}

// FindQuery locates every {key} occurrence for each key in query that is not
// immediately preceded by '$'. Keys are matched as plain substrings, so any
// byte sequence is a valid key. Values are passed through escape before being
// stored; a nil escape means EscapeComponent.
//
// Keys are visited in sorted order so the result is deterministic.
func FindQuery(s string, query map[string]string, escape func(string) string) []Occurrence {
	if len(query) == 0 || !strings.Contains(s, "{") {
		return nil
	}
	if escape == nil {
		escape = EscapeComponent
	}

	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []Occurrence
	for _, key := range keys {
		placeholder := "{" + key + "}"
		value := escape(query[key])

		for pos := 0; pos < len(s); {
			i := strings.Index(s[pos:], placeholder)
			if i < 0 {
				break
			}
			start, end := pos+i, pos+i+len(placeholder)
			if start > 0 && s[start-1] == '$' {
				// ${key} belongs to the environment class; retry one byte later.
				pos = start + 1
				continue
			}
			out = append(out, Occurrence{
				Key:   key,
				Value: value,
				Start: start,
				End:   end,
				Class: ClassQuery,
				Found: true,
			})
			pos = end
		}
	}
	return out
}

// FindEnv locates every ${key} occurrence in s and resolves it through lookup.
// Unresolved keys get an empty Value and Found == false.
func FindEnv(s string, lookup LookupFunc) []Occurrence {
	if !strings.Contains(s, "${") {
		return nil
	}
	if lookup == nil {
		lookup = MapLookup(nil)
	}

	matches := envPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return nil
	}

	out := make([]Occurrence, 0, len(matches))
	for _, m := range matches {
		key := s[m[2]:m[3]]
		value, found := lookup(key)
		out = append(out, Occurrence{
			Key:   key,
			Value: value,
			Start: m[0],
			End:   m[1],
			Class: ClassEnv,
			Found: found,
		})
	}
	return out
}

// Merge combines query and environment occurrences into a single list ordered
// by start offset. Entries with a negative start are dropped. The sort is
// stable, so on equal offsets query occurrences stay ahead of environment ones.
func Merge(query, env []Occurrence) []Occurrence {
	out := make([]Occurrence, 0, len(query)+len(env))
	for _, o := range query {
		if o.Start >= 0 {
			out = append(out, o)
		}
	}
	for _, o := range env {
		if o.Start >= 0 {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start < out[j].Start
	})
	return out
}

// Rewrite produces a new string from s with every occurrence replaced by its
// Value, in one left-to-right pass. occ must be sorted by Start (see Merge).
//
// An occurrence that starts before the end of the previously applied one is
// skipped, as is any occurrence whose offsets fall outside s.
func Rewrite(s string, occ []Occurrence) string {
	if len(occ) == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	cursor := 0
	for _, o := range occ {
		if o.Start < cursor || o.Start >= o.End || o.End > len(s) {
			continue
		}
		b.WriteString(s[cursor:o.Start])
		b.WriteString(o.Value)
		cursor = o.End
	}
	b.WriteString(s[cursor:])
	return b.String()
}
