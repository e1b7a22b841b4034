// Command sketchctl works with map documents offline: it builds and decodes
// share links, exports GeoJSON and renders share QR codes.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
