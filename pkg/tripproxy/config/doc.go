/*
Package config loads the proxy server configuration.

# Overview

A configuration file is decoded into a plain map and wrapped in Config, whose
accessors take a dotted key and a fallback. A key that is absent or holds the
wrong kind of value yields the fallback, so Load can read every setting in one
line without checking each one.

# Basic Usage

	cfg := config.New(map[string]any{
	    "upstream":  map[string]any{"timeout": "30s", "retries": 3},
	    "telemetry": map[string]any{"enabled": true},
	})

	cfg.Duration("upstream.timeout", 10*time.Second) // 30s
	cfg.Int("upstream.retries", 5)                    // 3
	cfg.Bool("telemetry.enabled", false)              // true
	cfg.String("listen", ":8080")                     // ":8080"

Sub returns a nested section as its own Config:

	up := cfg.Sub("upstream")
	up.Int("retries", 1) // 3

# Value Conversion

Durations accept a Go duration string ("750ms", "1m30s"), a bare number of
seconds, or a time.Duration. Int and Int64 accept whole floats (YAML and JSON
decoders produce both) and fall back on fractional ones. StringSlice accepts a
list of strings or a single comma-separated string.

# Files

FromFile picks the decoder by extension (.yaml, .yml or .json). FromYAML and
FromJSON decode bytes directly. ${VAR} references in string values are
expanded with Expand, using the same lookup chain as the template resolver:

	cfg, err := config.FromFile("tripproxy.yaml")
	if err != nil {
	    return err
	}
	cfg, err = cfg.Expand(template.OSLookup)

# Settings

Load maps a Config onto Settings, starting from Defaults and finishing with
Validate. LoadFile does FromFile, Expand and Load in one call:

	settings, err := config.LoadFile("tripproxy.yaml", template.OSLookup)
	settings.ApplyEnv(template.OSLookup) // PORT overrides listen

# Thread Safety

A Config is never modified after New, so concurrent reads are safe as long as
the caller does not mutate the map it passed in.
*/
package config
