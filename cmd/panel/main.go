package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/moguard/panel/internal/interfaces/cli/migrate"
	"github.com/moguard/panel/internal/interfaces/cli/server"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "panel",
		Short: "Panel - a multi-node proxy subscription control plane",
	}

	rootCmd.AddCommand(
		server.NewCommand(),
		migrate.NewCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
