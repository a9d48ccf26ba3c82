// Command ciai indexes CI pipeline documentation into a vector store and
// answers pipeline-authoring tasks with retrieval-augmented completions.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/ciai-go/cmd/ciai/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
