package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github/itish2003/pagesim/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "pagesim",
		Short:         "Find the most similar corpus pages for every page of a PDF",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the YAML configuration")

	root.AddCommand(newServeCmd(&configPath), newIndexCmd(&configPath))
	return root
}
