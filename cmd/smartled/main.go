// Command smartled drives a WS2812/SK6812 strip from the command line or as
// a websocket frame server.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
