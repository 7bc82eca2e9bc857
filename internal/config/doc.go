// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

/*
Package config loads the server configuration.

Sources are layered with koanf, later layers overriding earlier ones:

 1. Built-in defaults (defaultConfig)
 2. Optional YAML file: $CONFIG_PATH, ./config.yaml, ./config.yml,
    /etc/greeting/config.yaml
 3. Environment variables, through an explicit mapping table

List values (listen addresses, CIDR allow-list, user ids, CORS origins) may
be given as YAML lists or as comma-separated environment variables.

Example config.yaml:

	server:
	  listen: ["0.0.0.0:8989", "unix:/run/greeting/greeting.sock"]
	counter:
	  access_key: change-me
	  cidr_allowlist: ["127.0.0.0/8", "10.0.0.0/8"]
	  user_ids: ["alice", "bob"]
	  max_counters: 131072
	storage:
	  driver: sqlite
	  sqlite_path: /data/greeting.db
	profile:
	  ttl: 5m
	  min_interval: 1s

Only the access key and the CIDR allow-list are applied while running;
WatchAuthorizer reloads them when the file changes. Everything else needs a
restart.
*/
package config
