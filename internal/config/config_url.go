// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/samber/lo"
)

var (
	httpSchemes  = []string{"http", "https"}
	natsSchemes  = []string{"nats", "tls", "ws", "wss"}
	mongoSchemes = []string{"mongodb", "mongodb+srv"}
)

// parseEndpoint parses raw and requires one of schemes plus a host.
func parseEndpoint(raw string, schemes []string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("not a valid URL: %w", err)
	}
	if !lo.Contains(schemes, u.Scheme) {
		return nil, fmt.Errorf("scheme must be one of %s, got %q", strings.Join(schemes, ", "), u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	return u, nil
}

// validateHTTPURL checks a provider base URL. A path prefix such as
// /api/v1 is allowed; a query string is not, since request parameters
// are appended to it.
func validateHTTPURL(raw string) error {
	u, err := parseEndpoint(raw, httpSchemes)
	if err != nil {
		return err
	}
	if u.RawQuery != "" {
		return fmt.Errorf("must not carry query parameters, remove ?%s", u.RawQuery)
	}
	return nil
}

func validateNATSURL(raw string) error {
	_, err := parseEndpoint(raw, natsSchemes)
	return err
}

func validateMongoURI(raw string) error {
	_, err := parseEndpoint(raw, mongoSchemes)
	return err
}
