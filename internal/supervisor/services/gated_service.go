// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

package services

import (
	"context"
	"fmt"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/greeting/internal/logging"
)

// GatedService holds a service back until its gate channel is closed. The
// HTTP listeners are wrapped this way so no request reaches the counter
// store before the persisted counters are in it.
//
//	tree.AddAPIService(services.NewGatedService(loader.Loaded(), httpSvc))
type GatedService struct {
	gate <-chan struct{}
	svc  suture.Service
}

// NewGatedService wraps svc so it starts only after gate is closed.
func NewGatedService(gate <-chan struct{}, svc suture.Service) *GatedService {
	return &GatedService{gate: gate, svc: svc}
}

// Serve implements suture.Service.
func (g *GatedService) Serve(ctx context.Context) error {
	select {
	case <-g.gate:
	default:
		logging.Debug().Str("service", g.String()).Msg("Waiting for counters to load before starting")
		select {
		case <-g.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return g.svc.Serve(ctx)
}

// String implements fmt.Stringer.
func (g *GatedService) String() string {
	return fmt.Sprintf("%v", g.svc)
}
