// Command annotator runs the annotation service: a load-balancing broker in
// front of a pool of annotation workers, plus the optional HTTP, Redis and
// MQTT gateways.
//
// To stop it press Ctrl+C or run: kill -s INT <pid>
package main

import (
	"os"
)

func main() {
	opts, err := ParseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}
	if opts.Worker {
		os.Exit(runWorker(opts))
	}
	os.Exit(run(opts))
}
