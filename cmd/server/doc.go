// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

/*
Package main is the entry point for the Greeting server.

Greeting serves SVG badges: a visit counter with a date banner and a
linux.do profile card. Counters live in memory and are mirrored to a
durable sink through a write-behind queue; profiles are cached and
refreshed in the background.

# Application Architecture

	RootSupervisor ("greeting")
	├── DataSupervisor ("data-layer")
	│   ├── Sink loader (open sink, load counters, attach)
	│   └── Write-behind worker
	├── CacheSupervisor ("cache-layer")
	│   └── Profile refresh worker
	└── APISupervisor ("api-layer")
	    └── HTTP server per listen address (binds after the sink loader)

Component initialization order:

 1. Configuration: Koanf v2 with defaults, config file and environment
 2. Logging: zerolog with JSON or console output
 3. Task supervisor for fire-and-forget work
 4. Authorizer (access key and CIDR allow-list)
 5. Write-behind queue and counter store, seeded with user_ids
 6. Sanitizer, linux.do client and profile cache
 7. Renderer and chi router
 8. Supervisor tree, config watch and signal handling

# Configuration

	Priority: Environment variables > Config file > Defaults

Core environment variables:

	LISTEN=0.0.0.0:8989,unix:/run/greeting.sock
	ACCESS_KEY=<secret>          # enables ?key= authorization
	CIDR_ALLOWLIST=127.0.0.0/8   # origins allowed to create counters
	STORAGE_DRIVER=sqlite        # sqlite, postgres, redis, badger or none
	SQLITE_PATH=greeting.db
	LOG_LEVEL=info
	LOG_FORMAT=json

Every variable may also carry a GREETING_ prefix. When a config file is in
use, changes to counter.access_key and counter.cidr_allowlist are applied
without a restart.

# Signal Handling

SIGINT, SIGTERM and SIGHUP trigger shutdown:
  - The supervisor tree stops the listeners and background workers
  - Outstanding fetch and sweep tasks are given DrainTimeout to finish
  - Every counter is written to the sink in one batch
  - The sink is closed
*/
package main
