// Package main is the apex gateway's command-line entrypoint: a small
// cobra tree exposing "serve" and "validate" over the shared internal
// packages, following the teacher's single-binary startup idiom.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "apex",
	Short: "apex — multi-provider LLM gateway",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
}
