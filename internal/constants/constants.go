// Package constants defines application-wide constants and version information.
package constants

import "runtime"

// Version holds the application version information
const Version = "1.2-" + runtime.GOOS + "/" + runtime.GOARCH

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// GHCNDPrefix is the canonical station ID prefix for the GHCN-Daily dataset.
const GHCNDPrefix = "GHCND:"
