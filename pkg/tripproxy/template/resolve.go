package template

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// Result is the output of Resolve.
type Result struct {
	// URL is the decoded template with every placeholder substituted.
	URL string

	// Options is the decoded options document with environment
	// placeholders substituted in every string leaf. Nil when no
	// options were supplied.
	Options any
}

// Resolver substitutes query and environment placeholders in templates.
//
// Create with NewResolver() and configure with Option functions.
// Resolver holds no mutable state and is safe for concurrent use.
type Resolver struct {
	lookup        LookupFunc
	missingAction MissingAction
	escape        func(string) string
}

// NewResolver creates a new Resolver with the given options.
//
// Default configuration:
//   - Lookup: OSLookup
//   - MissingAction: MissingEmpty
//   - Escaper: EscapeComponent
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		lookup:        OSLookup,
		missingAction: MissingEmpty,
		escape:        EscapeComponent,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve decodes encodedURL, substitutes {key} placeholders from query and
// ${key} placeholders from the lookup, and returns the result. When
// encodedOptions is non-empty it is decoded as a JSON document and every
// string leaf gets environment substitution only.
//
// Returns *InvalidInputError when encodedURL is empty and *DecodingError
// when either input cannot be percent-decoded or the options are not JSON.
//
// Example:
//
//	r := NewResolver(WithLookup(MapLookup(map[string]string{"KEY": "k1"})))
//	res, _ := r.Resolve("https%3A%2F%2Fapi.test%2Fgeo%3Fq%3D%7Bq%7D%26key%3D%24%7BKEY%7D", "",
//	    map[string]string{"q": "Union Sq"})
//	// res.URL: "https://api.test/geo?q=Union%20Sq&key=k1"
func (r *Resolver) Resolve(encodedURL, encodedOptions string, query map[string]string) (Result, error) {
	if encodedURL == "" {
		return Result{}, &InvalidInputError{Field: "encodedUrl", Message: "URL cannot be empty"}
	}
	raw, err := DecodeComponent(encodedURL)
	if err != nil {
		return Result{}, &DecodingError{Field: "encodedUrl", Err: err}
	}
	if raw == "" {
		return Result{}, &InvalidInputError{Field: "encodedUrl", Message: "URL cannot be empty"}
	}

	resolved, err := r.ResolveString(raw, query)
	if err != nil {
		return Result{}, err
	}

	result := Result{URL: resolved}
	if encodedOptions == "" {
		return result, nil
	}

	opts, err := decodeOptions(encodedOptions)
	if err != nil {
		return Result{}, err
	}
	result.Options, err = r.ResolveOptions(opts)
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// ResolveString substitutes both placeholder classes in an already-decoded
// string. Matching always runs against s itself, so substituted values are
// never scanned again.
func (r *Resolver) ResolveString(s string, query map[string]string) (string, error) {
	env, err := r.applyMissing(FindEnv(s, r.lookup))
	if err != nil {
		return "", err
	}
	occ := Merge(FindQuery(s, query, r.escape), env)
	return Rewrite(s, occ), nil
}

// ResolveEnv substitutes only ${key} placeholders in s.
func (r *Resolver) ResolveEnv(s string) (string, error) {
	env, err := r.applyMissing(FindEnv(s, r.lookup))
	if err != nil {
		return "", err
	}
	return Rewrite(s, Merge(nil, env)), nil
}

// ResolveOptions walks a decoded JSON value and applies ResolveEnv to every
// string leaf. Maps and slices are copied; the input is not modified.
// Object keys and non-string leaves are returned unchanged.
func (r *Resolver) ResolveOptions(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return r.ResolveEnv(val)

	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			resolved, err := r.ResolveOptions(item)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil

	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := r.ResolveOptions(item)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil

	default:
		// json.Number, bool, nil
		return v, nil
	}
}

// applyMissing enforces the missing-variable policy on env occurrences.
func (r *Resolver) applyMissing(env []Occurrence) ([]Occurrence, error) {
	if r.missingAction == MissingEmpty {
		return env, nil
	}

	kept := make([]Occurrence, 0, len(env))
	var missing []string
	for _, o := range env {
		if o.Found {
			kept = append(kept, o)
			continue
		}
		// MissingKeep drops the occurrence, which leaves the original text in place.
		if r.missingAction == MissingError {
			missing = append(missing, o.Key)
		}
	}
	if len(missing) > 0 {
		return nil, &UndefinedVariableError{Names: missing}
	}
	return kept, nil
}

// decodeOptions percent-decodes and parses an options document.
// Numbers are kept as json.Number so they round-trip exactly.
func decodeOptions(encoded string) (any, error) {
	raw, err := DecodeComponent(encoded)
	if err != nil {
		return nil, &DecodingError{Field: "encodedOptions", Err: err}
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &DecodingError{Field: "encodedOptions", Err: err}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, &DecodingError{Field: "encodedOptions", Err: errors.New("unexpected data after JSON document")}
	}
	return v, nil
}

// defaultResolver reads the process environment with default settings.
var defaultResolver = NewResolver()

// Resolve resolves a template using the process environment.
//
// Unresolved environment placeholders become empty strings.
//
// Example:
//
//	res, err := template.Resolve("%7Bfrom%7D", "", map[string]string{"from": "a b"})
//	// res.URL: "a%20b"
func Resolve(encodedURL, encodedOptions string, query map[string]string) (Result, error) {
	return defaultResolver.Resolve(encodedURL, encodedOptions, query)
}
