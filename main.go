//go:build !desktop

package main

import (
	"fmt"
	"os"
)

// main without the desktop tag only points at the right build. The App
// binding still compiles and is tested headless.
func main() {
	fmt.Fprintln(os.Stderr, "lamina: desktop viewer not built; rebuild with -tags desktop or use cmd/lamina")
	os.Exit(2)
}
