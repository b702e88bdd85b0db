package main

import (
	"os"

	"github.com/urfave/cli"

	"github.com/df07/go-scene-raytracer/pkg/log"
)

var logger = log.New("raytracer")

func main() {
	if err := newApp().Run(os.Args); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "go-scene-raytracer"
	app.Usage = "progressive path tracing of live scene graphs"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
		cli.StringFlag{
			Name:  "config, c",
			Usage: "load settings from a TOML file",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "render",
			Usage: "render a scene to a PNG file",
			Description: `
Build the scene's BVH, start a progressive rendering job and let it run for
the requested duration. The accumulated image is written as a PNG and the
session statistics are printed when the job is stopped.`,
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "scene, s",
					Value: "cornell",
					Usage: "built-in scene id or path to a .ply model",
				},
				cli.IntFlag{
					Name:  "width",
					Value: 400,
					Usage: "frame width",
				},
				cli.IntFlag{
					Name:  "height",
					Value: 400,
					Usage: "frame height",
				},
				cli.DurationFlag{
					Name:  "duration, d",
					Value: defaultRenderDuration,
					Usage: "how long to accumulate samples",
				},
				cli.StringFlag{
					Name:  "out, o",
					Value: "frame.png",
					Usage: "image filename for the rendered frame",
				},
			},
			Action: RenderFrame,
		},
		{
			Name:  "serve",
			Usage: "serve a live render over HTTP",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "addr",
					Value: ":8080",
					Usage: "address to listen on",
				},
				cli.StringFlag{
					Name:  "scene, s",
					Value: "cornell",
					Usage: "built-in scene id to start with",
				},
				cli.BoolFlag{
					Name:  "watch",
					Usage: "reload the settings file when it changes",
				},
			},
			Action: Serve,
		},
		{
			Name:      "bvh",
			Usage:     "build the BVH for a scene and print its statistics",
			ArgsUsage: "scene_id|model.ply",
			Action:    DescribeBVH,
		},
		{
			Name:   "scenes",
			Usage:  "list built-in scenes",
			Action: ListScenes,
		},
	}
	return app
}
