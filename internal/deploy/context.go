package deploy

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/docker/docker/pkg/archive"
)

// excludePatterns keep dependencies, VCS data, build output and secrets out
// of the build context at any depth.
var excludePatterns = []string{
	"**/node_modules",
	"**/.git",
	"**/.gitignore",
	"**/.dockerignore",
	"**/.next",
	"**/dist",
	"**/build",
	"**/.vscode",
	"**/.idea",
	"**/*.log",
	"**/.env",
	"**/.env.*",
	"**/coverage",
	"**/.nyc_output",
	"**/.cache",
	"**/tmp",
	"**/temp",
}

// buildContext streams sourcePath as a tar build context whose root
// Dockerfile is dockerfile, replacing the source's own if it has one.
func buildContext(dockerfile, sourcePath string) (io.ReadCloser, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", sourcePath)
	}

	src, err := archive.TarWithOptions(sourcePath, &archive.TarOptions{
		ExcludePatterns: excludePatterns,
	})
	if err != nil {
		return nil, err
	}

	return archive.ReplaceFileTarWrapper(src, map[string]archive.TarModifierFunc{
		"Dockerfile": func(name string, _ *tar.Header, _ io.Reader) (*tar.Header, []byte, error) {
			return &tar.Header{
				Name:     name,
				Mode:     0o644,
				Typeflag: tar.TypeReg,
				ModTime:  time.Now(),
			}, []byte(dockerfile), nil
		},
	}), nil
}
