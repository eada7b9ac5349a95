// Package server exposes the HTTP API handlers.
package server

import (
	"context"

	"github.com/groupline/feedsim/backend/config"
	"github.com/groupline/feedsim/backend/engine"
	"github.com/groupline/feedsim/backend/feed"
	"github.com/groupline/feedsim/backend/fingerprint"
	"github.com/groupline/feedsim/backend/history"
	"github.com/groupline/feedsim/backend/joiner"
	"github.com/groupline/feedsim/backend/pool"
	"github.com/groupline/feedsim/backend/store"
)

// Deps bundles everything the handlers reach into.
type Deps struct {
	Store    store.Store
	View     *feed.View
	Pool     *pool.Pool
	Engine   *engine.Engine
	Joiner   *joiner.Simulator
	Presence *joiner.Presence
	Seeder   *history.Seeder
	Prints   *fingerprint.Store
	Config   config.Config
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	ctx  context.Context
	deps Deps

	adminName   string
	adminAvatar string
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(ctx context.Context, deps Deps) *Handlers {
	return &Handlers{
		ctx:         ctx,
		deps:        deps,
		adminName:   config.EnvString("ADMIN_NAME", "Profit Hunter 🌐"),
		adminAvatar: config.EnvString("ADMIN_AVATAR", "assets/admin.jpg"),
	}
}
