package template

// MissingAction specifies how to handle ${key} placeholders the lookup cannot resolve.
type MissingAction int

const (
	// MissingEmpty replaces the placeholder with an empty string.
	// This is the default behavior.
	MissingEmpty MissingAction = iota

	// MissingKeep keeps the placeholder as-is.
	MissingKeep

	// MissingError returns an *UndefinedVariableError naming every
	// unresolved key once the whole string has been scanned.
	MissingError
)

// String returns the action name as used in configuration files.
func (a MissingAction) String() string {
	switch a {
	case MissingEmpty:
		return "empty"
	case MissingKeep:
		return "keep"
	case MissingError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseMissingAction converts a configuration value ("empty", "keep",
// "error") into a MissingAction. Unknown values yield MissingEmpty and false.
func ParseMissingAction(s string) (MissingAction, bool) {
	switch s {
	case "", "empty":
		return MissingEmpty, true
	case "keep":
		return MissingKeep, true
	case "error":
		return MissingError, true
	default:
		return MissingEmpty, false
	}
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLookup sets the source for ${key} placeholders.
//
// Default: OSLookup (process environment)
//
// Example:
//
//	r := NewResolver(WithLookup(MapLookup(map[string]string{"API_KEY": "k"})))
func WithLookup(lookup LookupFunc) Option {
	return func(r *Resolver) {
		if lookup != nil {
			r.lookup = lookup
		}
	}
}

// WithMissingAction sets how unresolved ${key} placeholders are handled.
//
// Default: MissingEmpty
//
// Example:
//
//	r := NewResolver(WithMissingAction(MissingError))
//	_, err := r.ResolveEnv("${missing}")
//	// err: "undefined variable: missing"
func WithMissingAction(action MissingAction) Option {
	return func(r *Resolver) {
		r.missingAction = action
	}
}

// WithEscaper sets the encoder applied to query parameter values before
// substitution.
//
// Default: EscapeComponent
func WithEscaper(escape func(string) string) Option {
	return func(r *Resolver) {
		if escape != nil {
			r.escape = escape
		}
	}
}
