package fx

import (
	"github.com/vidsnap/vidsnap/internal/repositories/reel"
	"go.uber.org/fx"
)

var Module = fx.Options(
	reel.Module,
)
