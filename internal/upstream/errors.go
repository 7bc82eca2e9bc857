// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

package upstream

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUpstreamUnavailable wraps every failure to obtain a profile:
	// transport errors, timeouts, non-2xx responses, undecodable bodies,
	// Discourse error envelopes and an open circuit breaker.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrEmptyUsername is returned for an empty username without any
	// network call.
	ErrEmptyUsername = errors.New("upstream: empty username")
)

// DiscourseError is the error envelope returned by the Discourse API, e.g.
//
//	{"errors":["The requested URL or resource could not be found."],"error_type":"not_found"}
type DiscourseError struct {
	Errors    []string `json:"errors"`
	ErrorType string   `json:"error_type"`

	// StatusCode is the HTTP status the envelope arrived with.
	StatusCode int `json:"-"`
}

func (e *DiscourseError) Error() string {
	return fmt.Sprintf("discourse error %s (status %d): %s", e.ErrorType, e.StatusCode, strings.Join(e.Errors, "; "))
}

// Unwrap makes errors.Is(err, ErrUpstreamUnavailable) hold.
func (e *DiscourseError) Unwrap() error {
	return ErrUpstreamUnavailable
}

// NotFound reports whether the user does not exist.
func (e *DiscourseError) NotFound() bool {
	return e.ErrorType == "not_found"
}

// StatusError is a non-2xx response without a Discourse envelope.
type StatusError struct {
	Document   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s returned status %d: %s", e.Document, e.StatusCode, e.Body)
}

// Unwrap makes errors.Is(err, ErrUpstreamUnavailable) hold.
func (e *StatusError) Unwrap() error {
	return ErrUpstreamUnavailable
}

// IsNotFound reports whether err says the user does not exist upstream.
func IsNotFound(err error) bool {
	var de *DiscourseError
	return errors.As(err, &de) && de.NotFound()
}
