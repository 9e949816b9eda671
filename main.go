// The main package for the quake-crawler executable.
package main

import (
	"github.com/JakeFAU/quake-catalog-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
