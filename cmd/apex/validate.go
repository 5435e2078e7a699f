package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cregis-dev/apex/internal/config"
)

var validateConfigPath string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Parse and validate a gateway config file without starting a server",
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().StringVarP(&validateConfigPath, "config", "c", "apex.json", "Path to the gateway config file")
}

func runValidate(_ *cobra.Command, _ []string) error {
	raw, err := os.ReadFile(validateConfigPath)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	doc, err := config.ParseDocument(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		os.Exit(1)
	}
	if err := config.Validate(doc); err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s is valid (%d channels, %d routers, %d teams)\n",
		validateConfigPath, len(doc.Channels), len(doc.Routers), len(doc.Teams))
	return nil
}
