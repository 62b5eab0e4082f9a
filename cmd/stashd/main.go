// Package main is the entry point for stashd, a local music-library player
// that shows time-synchronised lyrics while a stash plays.
package main

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	Execute()
}
