package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/auto-dns/dock-route/internal/domain"
	"github.com/auto-dns/dock-route/internal/lifecycle"
)

var listCmd = &cobra.Command{
	Use:       "list [templates|containers]",
	Short:     "List available templates or managed containers",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"templates", "containers"},
	RunE: func(cmd *cobra.Command, args []string) error {
		application, cfg, _, err := newApplication(cmd)
		if err != nil {
			return err
		}
		defer application.Close()

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		defer w.Flush()

		switch args[0] {
		case "templates":
			fmt.Fprintln(w, "TYPE\tDESCRIPTION\tPORT\tMOUNT")
			for _, appType := range application.Catalog().ListTemplates() {
				tpl, err := application.Catalog().GetTemplate(appType)
				if err != nil {
					fmt.Fprintf(w, "%s\t(error loading details)\t\t\n", appType)
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", appType, tpl.Description, tpl.Port, tpl.MountPath)
			}
		case "containers":
			containers, err := application.Manager().ListManaged(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list containers: %w", err)
			}
			fmt.Fprintln(w, "ID\tNAME\tIMAGE\tSTATUS\tPORTS\tSUBDOMAIN")
			for _, c := range containers {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Image, c.Status, c.Ports,
					subdomainColumn(c, cfg.Proxy.Domain))
			}
		default:
			return fmt.Errorf("invalid list type: %s. Use 'templates' or 'containers'", args[0])
		}
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove [container-name]",
	Short: "Remove a deployed container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		removeImage, _ := cmd.Flags().GetBool("remove-image")

		application, cfg, logInstance, err := newApplication(cmd)
		if err != nil {
			return err
		}
		defer application.Close()

		name := args[0]
		removed, err := application.Teardown(cmd.Context(), name, force)
		if err != nil {
			return fmt.Errorf("failed to remove container: %w", err)
		}
		if client := runningInstance(cfg); client != nil && removed.Subdomain != "" {
			if err := client.UnpublishRoute(removed.Subdomain); err != nil {
				logInstance.Debug().Err(err).Msg("No running dock-route instance to withdraw the route from")
			}
		}
		if removeImage && removed.Image != "" {
			if err := application.Manager().RemoveImage(cmd.Context(), removed.Image); err != nil {
				logInstance.Warn().Err(err).Str("image", removed.Image).Msg("Failed to remove image")
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deployment '%s' has been removed.\n", name)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [container-name]",
	Short: "Show the status of a managed container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, _, _, err := newApplication(cmd)
		if err != nil {
			return err
		}
		defer application.Close()

		status, err := application.Manager().GetStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], status)
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start [container-name]",
	Short: "Start a stopped container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, _, _, err := newApplication(cmd)
		if err != nil {
			return err
		}
		defer application.Close()

		if err := application.Manager().Start(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to start container '%s': %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Container '%s' started successfully.\n", args[0])
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop [container-name]",
	Short: "Stop a running container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, _, _, err := newApplication(cmd)
		if err != nil {
			return err
		}
		defer application.Close()

		if err := application.Manager().Stop(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to stop container '%s': %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Container '%s' stopped successfully.\n", args[0])
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs [container-name]",
	Short: "Show container logs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		follow, _ := cmd.Flags().GetBool("follow")
		tail, _ := cmd.Flags().GetString("tail")
		if tail != "all" {
			if _, err := strconv.Atoi(tail); err != nil {
				return domain.NewValidationError(fmt.Sprintf("invalid --tail value %q", tail), err)
			}
		}

		application, _, _, err := newApplication(cmd)
		if err != nil {
			return err
		}
		defer application.Close()

		return application.Manager().Logs(cmd.Context(), args[0],
			lifecycle.LogOptions{Follow: follow, Tail: tail}, cmd.OutOrStdout(), os.Stderr)
	},
}

func subdomainColumn(c domain.ContainerInfo, baseDomain string) string {
	if c.Subdomain == "" {
		return "-"
	}
	return domain.FQDN(c.Subdomain, baseDomain)
}

func init() {
	rootCmd.AddCommand(listCmd, removeCmd, statusCmd, startCmd, stopCmd, logsCmd)

	removeCmd.Flags().BoolP("force", "f", false, "force remove a running container")
	removeCmd.Flags().Bool("remove-image", false, "also remove the associated Docker image")

	logsCmd.Flags().BoolP("follow", "f", false, "follow log output")
	logsCmd.Flags().StringP("tail", "t", "100", "number of lines to show from the end of the logs")
}
