package notification

import "go.uber.org/fx"

// Module provides the live notification hub.
var Module = fx.Provide(NewHub)
