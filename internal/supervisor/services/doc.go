// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

/*
Package services provides suture.Service wrappers for Greeting components
that do not already implement Serve(ctx) themselves.

HTTP listener (HTTPServerService):
  - Binds one listen address, either host:port or unix:/path
  - Removes a stale unix socket file before binding
  - Shuts the server down gracefully when the context is cancelled

Sink loader (SinkLoaderService):
  - Opens the configured storage sink with a timeout
  - Loads every persisted counter into the store
  - Attaches the sink to the write-behind queue and reports ready
  - Closes its Loaded channel once the counters are in memory

Gate (GatedService):
  - Holds a wrapped service back until a channel is closed
  - main wraps each HTTP listener with the loader's Loaded channel

The write-behind queue and the profile cache implement suture.Service
directly and are added to the tree without a wrapper.
*/
package services
