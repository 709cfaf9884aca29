// Command weatherdepot runs the weather aggregation service: scheduled
// NWS/NOAA ingest, the local historic importer, and the read API.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/weatherdepot/weatherdepot/internal/app"
	"github.com/weatherdepot/weatherdepot/internal/constants"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging")
	version := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *version {
		fmt.Println(constants.Version)
		return
	}

	if err := app.Run(*debug); err != nil {
		fmt.Fprintf(os.Stderr, "weatherdepot: %v\n", err)
		os.Exit(1)
	}
}
