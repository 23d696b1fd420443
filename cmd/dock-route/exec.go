package main

import (
	"context"
	"fmt"
	"path"
	"slices"

	"github.com/spf13/cobra"

	"github.com/auto-dns/dock-route/internal/domain"
	"github.com/auto-dns/dock-route/internal/lifecycle"
)

// packageFiles are copied back to the host after a package manager changes
// dependencies inside a container.
var packageFiles = []string{"package.json", "package-lock.json", "yarn.lock", "pnpm-lock.yaml"}

var (
	packageManagers   = []string{"npm", "yarn", "pnpm"}
	packageSubcommand = []string{"install", "i", "add", "remove", "rm", "uninstall", "un", "update", "upgrade"}
)

var execCmd = &cobra.Command{
	Use:   "exec [container-name] -- [command...]",
	Short: "Run a command inside a running container",
	Long: `Run a command inside a running managed container and stream its output.

When --sync-dir is set and the command changes dependencies through npm, yarn
or pnpm, package.json and the lock files are copied from --workdir back into
--sync-dir.

Example:
  dock-route exec my-app -- npm install lodash
  dock-route exec --sync-dir ./my-app my-app -- yarn add react-query`,
	Args: cobra.MinimumNArgs(2),
	RunE: runExec,
}

func init() {
	rootCmd.AddCommand(execCmd)

	execCmd.Flags().SetInterspersed(false)
	execCmd.Flags().StringP("workdir", "w", "/app", "working directory inside the container")
	execCmd.Flags().String("sync-dir", "", "host directory to copy package files back to")
}

func runExec(cmd *cobra.Command, args []string) error {
	workdir, _ := cmd.Flags().GetString("workdir")
	syncDir, _ := cmd.Flags().GetString("sync-dir")
	name, command := args[0], args[1:]

	application, _, logInstance, err := newApplication(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	m := application.Manager()
	code, err := m.Exec(cmd.Context(), name,
		lifecycle.ExecOptions{Cmd: command, WorkDir: workdir}, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("failed to exec in container '%s': %w", name, err)
	}
	if code != 0 {
		return fmt.Errorf("command exited with code %d", code)
	}

	if syncDir == "" || !changesPackages(command) {
		return nil
	}
	synced, err := syncPackageFiles(cmd.Context(), m, name, workdir, syncDir)
	if err != nil {
		return fmt.Errorf("failed to sync package files: %w", err)
	}
	logInstance.Debug().Strs("files", synced).Str("dir", syncDir).Msg("Synced package files")
	fmt.Fprintf(cmd.OutOrStdout(), "Synced %d package file(s) to %s\n", len(synced), syncDir)
	return nil
}

func changesPackages(command []string) bool {
	if len(command) < 2 || !slices.Contains(packageManagers, path.Base(command[0])) {
		return false
	}
	return slices.ContainsFunc(command[1:], func(arg string) bool {
		return slices.Contains(packageSubcommand, arg)
	})
}

type fileCopier interface {
	CopyFrom(ctx context.Context, name, srcPath, destDir string) error
}

// syncPackageFiles copies every package file present in workdir to destDir.
func syncPackageFiles(ctx context.Context, c fileCopier, name, workdir, destDir string) ([]string, error) {
	var synced []string
	for _, f := range packageFiles {
		err := c.CopyFrom(ctx, name, path.Join(workdir, f), destDir)
		if domain.IsNotFound(err) {
			continue
		}
		if err != nil {
			return synced, err
		}
		synced = append(synced, f)
	}
	return synced, nil
}
