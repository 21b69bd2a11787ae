package main

import (
	"flag"
	"fmt"
	"io"
)

// Options holds the command line.
type Options struct {
	ConfigPath string
	SaveConfig string
	Port       int
	Workers    int

	// set by the worker subcommand the supervisor runs
	Worker   bool
	WorkerID int
}

// ParseFlags parses either the service flags or, after a leading "worker",
// the worker subcommand flags.
func ParseFlags(args []string, output io.Writer) (Options, error) {
	var opts Options
	if len(args) > 0 && args[0] == "worker" {
		fs := flag.NewFlagSet("annotator worker", flag.ContinueOnError)
		fs.SetOutput(output)
		fs.IntVar(&opts.WorkerID, "id", -1, "worker number, names the worker Worker-<id>")
		fs.StringVar(&opts.ConfigPath, "config", "", "configuration file")
		if err := fs.Parse(args[1:]); err != nil {
			return opts, err
		}
		if opts.WorkerID < 0 {
			return opts, fmt.Errorf("worker: --id is required")
		}
		opts.Worker = true
		return opts, nil
	}

	fs := flag.NewFlagSet("annotator", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.IntVar(&opts.Port, "port", 0, "frontend port (overrides service.port)")
	fs.IntVar(&opts.Workers, "workers", 0, "number of concurrent workers (overrides service.workers)")
	fs.StringVar(&opts.ConfigPath, "config", "", "configuration file")
	fs.StringVar(&opts.SaveConfig, "save-config", "", "export the effective configuration to this file")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	return opts, nil
}
