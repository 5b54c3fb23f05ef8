package app

import (
	"github.com/go-chi/oauth"

	"github.com/istm-portal/backend/config"
	"github.com/istm-portal/backend/store"
)

// App bundles what every handler needs: the backend selected at startup,
// the token server and the runtime configuration. Handlers never reach for
// shared mutable state to find their data source.
type App struct {
	Store store.Store
	*oauth.BearerServer
	config.Config
}
