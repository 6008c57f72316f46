// Command casefile turns a bundle of evidence into a reviewed
// investigative article, pausing at human checkpoints along the way.
package main

import (
	"fmt"
	"os"

	"github.com/randalmurphal/casefile/pkg/pipeline"
)

func main() {
	if err := Execute(os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for requests the workflow refused and 1 for everything
// else.
func exitCode(err error) int {
	if pipeline.IsRequestError(err) {
		return 2
	}
	return 1
}
