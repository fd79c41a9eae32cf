package main

import (
	"io"
	"log"
	"os"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/hellovr/config"
)

//go:generate glslc -fshader-stage=vert shaders/scene.vert -o shaders/scene_vs.spv
//go:generate glslc -fshader-stage=frag shaders/scene.frag -o shaders/scene_ps.spv
//go:generate glslc -fshader-stage=vert shaders/axes.vert -o shaders/axes_vs.spv
//go:generate glslc -fshader-stage=frag shaders/axes.frag -o shaders/axes_ps.spv
//go:generate glslc -fshader-stage=vert shaders/rendermodel.vert -o shaders/rendermodel_vs.spv
//go:generate glslc -fshader-stage=frag shaders/rendermodel.frag -o shaders/rendermodel_ps.spv
//go:generate glslc -fshader-stage=vert shaders/companion.vert -o shaders/companion_vs.spv
//go:generate glslc -fshader-stage=frag shaders/companion.frag -o shaders/companion_ps.spv

func main() {
	runtime.LockOSThread()

	cfg, err := config.Parse(os.Args[1:])
	if errors.Is(err, config.ErrHelp) {
		config.PrintUsage(os.Stdout)
		return
	}
	if err != nil {
		config.PrintUsage(os.Stderr)
		log.Fatalf("%+v\n", err)
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)
	if cfg.NoPrintf {
		logger.SetOutput(io.Discard)
		log.SetOutput(io.Discard)
	}

	app := &HelloVRApplication{
		cfg:    cfg,
		logger: logger,
	}

	err = app.Run()
	if err != nil {
		log.SetOutput(os.Stderr)
		log.Fatalf("%+v\n", err)
	}
}
