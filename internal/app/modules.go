package app

import (
	"github.com/specialistvlad/taskgrid/internal/registry"
	"github.com/specialistvlad/taskgrid/modules/download"
	"github.com/specialistvlad/taskgrid/modules/env_vars"
	"github.com/specialistvlad/taskgrid/modules/fsops"
	"github.com/specialistvlad/taskgrid/modules/http_request"
	"github.com/specialistvlad/taskgrid/modules/log"
	"github.com/specialistvlad/taskgrid/modules/s3"
)

// coreModules is the definitive list of all modules that are compiled into
// the taskgrid binary.
var coreModules = []registry.Module{
	&download.Module{},
	&env_vars.Module{},
	&fsops.Module{},
	&http_request.Module{},
	&log.Module{},
	&s3.Module{},
}

// CoreModules returns the built-in modules, for callers that add their own.
func CoreModules() []registry.Module {
	return append([]registry.Module(nil), coreModules...)
}
