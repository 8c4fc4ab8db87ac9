package app

import (
	"github.com/vk/matrixrun/internal/registry"
	"github.com/vk/matrixrun/modules/artifact"
	"github.com/vk/matrixrun/modules/shell"
	"github.com/vk/matrixrun/modules/stream"
	"github.com/vk/matrixrun/modules/sysinfo"
	"github.com/vk/matrixrun/modules/webhook"
)

// coreModules are the runner modules available to every pipeline unless a
// caller (usually a test) injects its own set.
var coreModules = []registry.Module{
	&shell.Module{},
	&sysinfo.Module{},
	&webhook.Module{},
	&artifact.Module{},
	&stream.Module{},
}
