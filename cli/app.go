// Package cli contains the projmap command line application.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	// Global flags.
	flagConfig  = "config"
	flagDebug   = "debug"
	flagLogFile = "log-file"

	// Command flags.
	flagProjector     = "projector"
	flagWidth         = "width"
	flagHeight        = "height"
	flagOutput        = "output"
	flagInput         = "input"
	flagComplementary = "complementary"
	flagCells         = "cells"
	flagHistogram     = "histogram"
	flagPlot          = "plot"
)

var projectorFlag = &cli.IntSliceFlag{
	Name:    flagProjector,
	Aliases: []string{"p"},
	Usage:   "projector `ID` to work on, may be repeated; defaults to every configured projector",
}

var app = &cli.App{
	Name:            "projmap",
	Usage:           "calibrate projectors with structured light and warp content onto them",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    flagConfig,
			Aliases: []string{"c"},
			Usage:   "load configuration from `FILE`",
		},
		&cli.BoolFlag{
			Name:    flagDebug,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
		&cli.StringFlag{
			Name:  flagLogFile,
			Usage: "also write logs to `FILE`",
		},
	},
	Before: setupLogging,
	After:  closeLogging,
	Commands: []*cli.Command{
		{
			Name:  "patterns",
			Usage: "write the Gray code pattern images of projectors",
			Flags: []cli.Flag{
				projectorFlag,
				&cli.IntFlag{Name: flagWidth, Usage: "projector width, instead of reading a config"},
				&cli.IntFlag{Name: flagHeight, Usage: "projector height, instead of reading a config"},
				&cli.BoolFlag{Name: flagComplementary, Usage: "follow every bit plane with its inverse"},
				&cli.StringFlag{Name: flagOutput, Value: "patterns", Usage: "output `DIR`"},
			},
			Action: PatternsAction,
		},
		{
			Name:   "capture",
			Usage:  "show the patterns of each projector and capture them with the camera",
			Flags:  []cli.Flag{projectorFlag},
			Action: CaptureAction,
		},
		{
			Name:   "decode",
			Usage:  "decode captured frames into camera to projector correspondences",
			Flags:  []cli.Flag{projectorFlag},
			Action: DecodeAction,
		},
		{
			Name:  "homography",
			Usage: "fit each projector's homography from its correspondences",
			Flags: []cli.Flag{
				projectorFlag,
				&cli.BoolFlag{Name: flagHistogram, Usage: "print a histogram of reprojection errors"},
				&cli.BoolFlag{Name: flagPlot, Usage: "save a plot of reprojection errors next to the homography"},
			},
			Action: HomographyAction,
		},
		{
			Name:   "blend",
			Usage:  "compute the contribution maps of all projectors sharing the camera view",
			Action: BlendAction,
		},
		{
			Name:  "warp",
			Usage: "warp an image into a projector's pixels",
			Flags: []cli.Flag{
				&cli.IntFlag{Name: flagProjector, Aliases: []string{"p"}, Required: true, Usage: "projector `ID`"},
				&cli.StringFlag{Name: flagInput, Aliases: []string{"i"}, Required: true, Usage: "source image `FILE`"},
				&cli.StringFlag{Name: flagOutput, Aliases: []string{"o"}, Required: true, Usage: "output image `FILE`"},
			},
			Action: WarpAction,
		},
		{
			Name:  "testcard",
			Usage: "draw a test card image",
			Flags: []cli.Flag{
				&cli.IntFlag{Name: flagWidth, Value: 1920},
				&cli.IntFlag{Name: flagHeight, Value: 1080},
				&cli.IntFlag{Name: flagCells, Value: 8, Usage: "grid cells across"},
				&cli.StringFlag{Name: flagOutput, Aliases: []string{"o"}, Value: "testcard.png", Usage: "output image `FILE`"},
			},
			Action: TestCardAction,
		},
		{
			Name:  "run",
			Usage: "warp an image onto every projector and keep it displayed, re-rendering when the file changes",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: flagInput, Aliases: []string{"i"}, Required: true, Usage: "source image `FILE`"},
			},
			Action: RunAction,
		},
	},
}

// NewApp returns a new app with the CLI function attached.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
