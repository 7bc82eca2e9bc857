// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

package counter

import "errors"

var (
	// ErrUnauthorized is returned when neither the origin nor the credential
	// passes the Authorizer.
	ErrUnauthorized = errors.New("counter: unauthorized")

	// ErrNotFound is returned when deleting a counter that does not exist.
	ErrNotFound = errors.New("counter: not found")
)
