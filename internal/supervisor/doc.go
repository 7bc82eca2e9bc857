// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

/*
Package supervisor runs the long-lived parts of Greeting under a suture v4
supervisor tree.

Services are grouped into three layers so a crash in one does not restart
the others:

	RootSupervisor ("greeting")
	├── DataSupervisor ("data-layer")
	│   ├── SinkLoaderService (open sink, load counters, attach)
	│   └── writebehind.Queue (persist worker)
	├── CacheSupervisor ("cache-layer")
	│   └── profile.Cache (refresh worker)
	└── APISupervisor ("api-layer")
	    └── GatedService(HTTPServerService), one per listen address

Crashed services are restarted with suture's backoff. Supervisor events are
logged through sutureslog, which main wires to the zerolog logger:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
	    FailureThreshold: cfg.Supervisor.FailureThreshold,
	    ShutdownTimeout:  cfg.Supervisor.ShutdownTimeout,
	})
	tree.AddDataService(queue)
	tree.AddCacheService(profiles)
	tree.AddAPIService(services.NewHTTPServerService(server, addr, 15*time.Second))

	errCh := tree.ServeBackground(ctx)

Cancelling ctx stops every layer; UnstoppedServiceReport lists services that
did not return within ShutdownTimeout.
*/
package supervisor
