// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

/*
Package api serves the badge HTTP surface with the chi router.

Routes:

	GET    /greeting/{id}    count a visit and render a badge (image/svg+xml)
	DELETE /greeting/{id}    delete a counter (access_key or allow-listed origin)
	GET    /card/{user}      render a linux.do profile card without counting
	GET    /stats/requests   per-route latency window (authorized callers only)
	GET    /health/live      process is up
	GET    /health/ready     durable sink is attached
	GET    /metrics          Prometheus metrics

Query parameters of GET /greeting/{id}:

  - access_key: credential for creating a new counter
  - timezone: IANA zone for the date line, default Asia/Shanghai
  - type: general (default) or linux-do-card; any other value renders general
  - note: free text under the greeting, markup stripped
  - bg: none (default) or lunar_new_year
  - debug: 1 or true reads the counter without incrementing it
  - user: linux.do username for the card, defaults to {id}
  - bio: bio override for the card, markup stripped

Badges are answered with 200 even when profile data is unavailable; the card
then shows its placeholder.
*/
package api
