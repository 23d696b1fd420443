package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/auto-dns/dock-route/internal/app"
	"github.com/auto-dns/dock-route/internal/domain"
)

var deployCmd = &cobra.Command{
	Use:   "deploy [app-type] [container-name] [source]",
	Short: "Deploy an application with automatic subdomain routing",
	Long: `Deploy an application using a template (nextjs, reactjs, nodejs). The source
is a local directory or a git URL.

Example:
  dock-route deploy nextjs my-next-app ./my-next-project`,
	Args: cobra.ExactArgs(3),
	RunE: runDeploy,
}

func init() {
	rootCmd.AddCommand(deployCmd)

	deployCmd.Flags().StringP("image", "i", "", "custom image name (default: auto-generated)")
	deployCmd.Flags().String("host-port", "8081", "host port to bind the container port to")
	deployCmd.Flags().String("subdomain", "", "subdomain to route (default: preview-<container-name>)")
	deployCmd.Flags().Bool("start-proxy", true, "run the reverse proxy after deploying")
	deployCmd.Flags().Bool("dev", true, "development mode with the source mounted for live editing")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	image, _ := flags.GetString("image")
	hostPort, _ := flags.GetString("host-port")
	subdomain, _ := flags.GetString("subdomain")
	startProxy, _ := flags.GetBool("start-proxy")
	dev, _ := flags.GetBool("dev")

	application, cfg, logInstance, err := newApplication(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	result, err := application.Deploy(cmd.Context(), app.DeployRequest{
		AppType:       args[0],
		ContainerName: args[1],
		Source:        args[2],
		HostPort:      hostPort,
		ImageName:     image,
		Subdomain:     subdomain,
		DevMode:       dev,
	})
	if err != nil {
		return fmt.Errorf("failed to deploy container: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Container deployed successfully!")
	fmt.Fprintf(out, "Deployment: %s\n", result.DeploymentID)
	fmt.Fprintf(out, "Container: %s\n", result.ContainerName)
	fmt.Fprintf(out, "Image:     %s\n", result.ImageName)
	fmt.Fprintf(out, "Subdomain: %s\n", result.FQDN)
	if dev {
		fmt.Fprintf(out, "Live editing enabled, watching %s\n", result.SourcePath)
	}

	entry := domain.RoutingEntry{Subdomain: result.Subdomain, Target: result.Target, Container: result.ContainerName}
	if client := runningInstance(cfg); client != nil {
		err := client.PublishRoute(entry)
		if err == nil {
			fmt.Fprintf(out, "Route added to the running dock-route instance: http://%s:%s\n", result.FQDN, cfg.Proxy.Port)
			return nil
		}
		logInstance.Debug().Err(err).Msg("No running dock-route instance took the route")
	}

	if !startProxy {
		fmt.Fprintln(out, "The route is served by the next 'dock-route serve'.")
		return nil
	}
	fmt.Fprintf(out, "Access your application at: http://%s:%s\n", result.FQDN, cfg.Proxy.Port)
	return runUntilSignal(application, logInstance)
}
