// Command tripproxy runs the trip planner's fetch proxy.
package main

import "github.com/randalmurphal/tripproxy/internal/cli"

func main() {
	cli.Execute()
}
