package metrics

import "go.uber.org/fx"

// Module provides the shared metrics set.
var Module = fx.Provide(New)
