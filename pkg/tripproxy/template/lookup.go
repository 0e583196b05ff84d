package template

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// LookupFunc resolves an environment placeholder key.
// It must be safe for concurrent use.
type LookupFunc func(key string) (string, bool)

// OSLookup reads the process environment.
func OSLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// MapLookup serves keys from a fixed map. The map is copied.
func MapLookup(m map[string]string) LookupFunc {
	vals := make(map[string]string, len(m))
	for k, v := range m {
		vals[k] = v
	}
	return func(key string) (string, bool) {
		v, ok := vals[key]
		return v, ok
	}
}

// ChainLookup tries each lookup in order and returns the first hit.
func ChainLookup(lookups ...LookupFunc) LookupFunc {
	return func(key string) (string, bool) {
		for _, l := range lookups {
			if l == nil {
				continue
			}
			if v, ok := l(key); ok {
				return v, true
			}
		}
		return "", false
	}
}

// DotenvLookup reads the given .env files and serves their values.
// Keys in later files override earlier ones. The process
// environment is not modified.
func DotenvLookup(paths ...string) (LookupFunc, error) {
	if len(paths) == 0 {
		return MapLookup(nil), nil
	}
	vals, err := godotenv.Read(paths...)
	if err != nil {
		return nil, fmt.Errorf("read env files: %w", err)
	}
	return MapLookup(vals), nil
}
