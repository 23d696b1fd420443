package main

import (
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reverse proxy and admin API",
	Long: `Run the reverse proxy (and the admin API when enabled). Routes recorded on
running managed containers are restored at startup.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, _, logInstance, err := newApplication(cmd)
		if err != nil {
			return err
		}
		defer application.Close()

		return runUntilSignal(application, logInstance)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
