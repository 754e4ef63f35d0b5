// bundlefx/bundlefx.go
package bundlefx

import (
	"github.com/joeydtaylor/steeze-assets/pkg/middleware/auth"
	"github.com/joeydtaylor/steeze-assets/pkg/middleware/logger"
	"github.com/joeydtaylor/steeze-assets/pkg/middleware/metrics"
	"go.uber.org/fx"
)

// Module provides the auth, logging and metrics middleware plus the /metrics
// handler (name:"metrics") and the resolver metrics observer.
var Module = fx.Options(
	auth.Module,
	logger.Module,
	metrics.Module,
)
