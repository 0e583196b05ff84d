/*
Package template resolves placeholders in proxied request templates.

# Overview

The trip planner's browser client never holds upstream API keys. It sends the
proxy a percent-encoded URL template instead, and the proxy fills in two kinds
of placeholders before issuing the request:

  - {key}  - query placeholder, filled from the caller's query parameters.
    Values are percent-encoded with encodeURIComponent semantics.
  - ${key} - environment placeholder, filled from a server-side lookup
    (process environment, .env files). Values are inserted verbatim.

A {key} immediately preceded by '$' is never a query placeholder, so a caller
cannot shadow a server secret by sending a query parameter with its name.

# Basic Usage

	res, err := template.Resolve(
	    "https%3A%2F%2Fgeo.test%2Fsearch%3Fq%3D%7Bq%7D%26key%3D%24%7BGEO_KEY%7D",
	    "",
	    map[string]string{"q": "Penn Station"},
	)
	// res.URL: "https://geo.test/search?q=Penn%20Station&key=<value of GEO_KEY>"

An optional options document (percent-encoded JSON, usually fetch options)
gets environment substitution in every string leaf:

	opts := url.PathEscape(`{"headers":{"Authorization":"Bearer ${OTP_TOKEN}"}}`)
	res, err := template.Resolve(encodedURL, opts, nil)
	// res.Options: map[string]any{"headers": map[string]any{"Authorization": "Bearer ..."}}

# Algorithm

Resolution is two explicit phases:

 1. Match. FindQuery searches the original string for each literal
    "{key}", so caller-supplied keys are never compiled as patterns.
    FindEnv uses one fixed pattern for ${key}. Both return Occurrence
    records holding the key, resolved value and byte offsets. Merge
    orders them by offset.
 2. Rewrite. Rewrite walks the original string once with a cursor, copying
    unmatched text and appending each value.

Because offsets always refer to the original string and the output is built
separately, a substituted value is never scanned for placeholders.

# Missing Variables

Unresolved ${key} placeholders become empty strings by default. Configure
with options:

	r := template.NewResolver(template.WithMissingAction(template.MissingKeep))
	s, _ := r.ResolveEnv("key=${UNSET}")
	// s: "key=${UNSET}"

	r = template.NewResolver(template.WithMissingAction(template.MissingError))
	_, err := r.ResolveEnv("key=${UNSET}")
	// err: "undefined variable: UNSET"

# Environment Sources

Resolver reads through a LookupFunc, which keeps tests away from the real
process environment:

	dotenv, err := template.DotenvLookup(".env")
	r := template.NewResolver(template.WithLookup(
	    template.ChainLookup(template.OSLookup, dotenv),
	))

# Errors

Resolve returns *InvalidInputError for an empty URL and *DecodingError for bad
percent-encoding, escapes that do not decode to UTF-8, or malformed options
JSON. Both match the ErrInvalidInput and
ErrDecoding sentinels through errors.Is.

# Thread Safety

Resolver is safe for concurrent use after construction.
*/
package template
