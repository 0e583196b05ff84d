/*
Package tripproxy serves the trip planner's fetch proxy.

# Overview

The browser client cannot hold upstream API keys, so it asks the proxy to
make requests on its behalf. A request names a percent-encoded URL
template and, optionally, percent-encoded fetch options:

	GET /fetch?encodedUrl=<template>&encodedOptions=<json>&q=Penn%20Station

The proxy resolves the template (see package template): {q} placeholders
take the caller's other query parameters, ${KEY} placeholders take server
secrets. It then calls the upstream and relays status, selected headers and
body unchanged.

# Basic Usage

	srv := tripproxy.NewServer(
	    tripproxy.WithCache(cache.NewMemoryStore(1000)),
	    tripproxy.WithAllowedHosts("api.geo.test", "*.transit.test"),
	    tripproxy.WithLogger(logger),
	)
	log.Fatal(srv.Serve(ctx, ":8080"))

Or from a configuration file:

	settings, _ := config.LoadFile("tripproxy.yaml", template.OSLookup)
	srv, closeCache, err := tripproxy.NewServerFromSettings(settings, nil)

# Fetch Options

The resolved options document is read as a subset of browser fetch options:

	{"method": "POST", "headers": {"Authorization": "Bearer ${TOKEN}"}, "body": {...}}

method defaults to GET. A string body is sent verbatim; any other JSON body
is re-encoded and sent as application/json.

# Status Codes

  - 400: empty or malformed encodedUrl, malformed options, non-http(s) URL
  - 403: host outside the allow-list
  - 500: a required ${KEY} is undefined (MissingError policy)
  - 502: upstream unreachable after retries
  - 504: upstream timed out

Upstream responses, including 4xx and 5xx, are relayed with their own
status.

# Caching

GET and HEAD requests without a body are cached by a SHA-256 fingerprint of
method, resolved URL and headers. Only 2xx responses no larger than the
configured limit are stored. Responses carry X-Cache: HIT or MISS.

# Retries

Idempotent requests are retried on network errors, timeouts, 429, 502, 503
and 504 with exponential backoff (package errors). The final attempt's
response is relayed whatever its status.
*/
package tripproxy
