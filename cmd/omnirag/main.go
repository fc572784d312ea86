// Command omnirag runs the adaptive RAG pipeline, either as an HTTP server
// or as a one-shot CLI for a single query or ingestion.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "omnirag",
		Short: "Adaptive multi-strategy retrieval-augmented generation pipeline",
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newQueryCmd())
	root.AddCommand(newIngestCmd())
	return root
}
