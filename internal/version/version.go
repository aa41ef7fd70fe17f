// Package version provides build and version information for Project Board.
package version

// Version is the current release version of Project Board.
// This can be overridden at build time using:
//
//	go build -ldflags "-X github.com/AaronLay10/ProjectBoard/internal/version.Version=x.y.z"
var Version = "0.3.0"
