// Command hxrender inspects and manages the build output of hxrender sites.
// Building and serving are done by the site's own binary (see lib/cli),
// since only it knows the site's templates.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/pthm/hxrender"
	"github.com/pthm/hxrender/lib/cli"
	"github.com/pthm/hxrender/lib/store"
)

const version = "0.1.0"

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Getenv); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer, getenv func(string) string) error {
	if len(args) == 0 {
		printUsage(stdout)
		return errors.New("no command given")
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "routes":
		return runRoutes(ctx, rest, stdout, getenv)
	case "artifacts":
		return runArtifacts(ctx, rest, stdout, getenv)
	case "clean":
		return runClean(rest, stdout, getenv)
	case "version":
		fmt.Fprintf(stdout, "hxrender version %s\n", version)
		return nil
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	default:
		printUsage(stdout)
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `hxrender - rendering strategy engine for Templ sites

Usage:
  hxrender <command> [flags]

Commands:
  routes [--config file]               Print the render config of the last build
  artifacts [--config file] [prefix]   List stored artifacts
  clean [--config file] [--dry-run]    Remove build output
  version                              Print version
  help                                 Show this help

The config file defaults to $`+cli.ConfigEnv+` or hxrender.yaml.`)
}

func loadConfig(fs *pflag.FlagSet, args []string, getenv func(string) string) (hxrender.Config, error) {
	def := getenv(cli.ConfigEnv)
	if def == "" {
		def = "hxrender.yaml"
	}
	path := fs.String("config", def, "config file")
	if err := fs.Parse(args); err != nil {
		return hxrender.Config{}, err
	}
	return hxrender.LoadConfig(*path)
}

func runRoutes(ctx context.Context, args []string, stdout io.Writer, getenv func(string) string) error {
	fs := pflag.NewFlagSet("routes", pflag.ContinueOnError)
	cfg, err := loadConfig(fs, args, getenv)
	if err != nil {
		return err
	}

	immutable, _, closeFn, err := cfg.OpenStores()
	if err != nil {
		return err
	}
	defer closeFn()

	rc, err := hxrender.LoadRenderConfig(ctx, immutable)
	if err != nil {
		return err
	}
	for _, route := range rc.Routes() {
		kind := "exact"
		if hxrender.IsWildcard(route) {
			kind = "incremental"
		}
		display := "/" + route
		fmt.Fprintf(stdout, "%-40s %-20s %s\n", display, rc[route], kind)
	}
	return nil
}

func runArtifacts(ctx context.Context, args []string, stdout io.Writer, getenv func(string) string) error {
	fs := pflag.NewFlagSet("artifacts", pflag.ContinueOnError)
	cfg, err := loadConfig(fs, args, getenv)
	if err != nil {
		return err
	}
	prefix := ""
	if fs.NArg() > 0 {
		prefix = fs.Arg(0)
	}

	immutable, mutable, closeFn, err := cfg.OpenStores()
	if err != nil {
		return err
	}
	defer closeFn()

	for _, tier := range []struct {
		name string
		s    store.Store
	}{{"immutable", immutable}, {"mutable", mutable}} {
		names, err := tier.s.List(ctx, prefix)
		if err != nil {
			return fmt.Errorf("%s: %w", tier.name, err)
		}
		for _, n := range names {
			fmt.Fprintf(stdout, "%-10s %s\n", tier.name, n)
		}
	}
	return nil
}

func runClean(args []string, stdout io.Writer, getenv func(string) string) error {
	fs := pflag.NewFlagSet("clean", pflag.ContinueOnError)
	dryRun := fs.Bool("dry-run", false, "show what would be removed")
	cfg, err := loadConfig(fs, args, getenv)
	if err != nil {
		return err
	}

	dist := filepath.Clean(cfg.Dist)
	if dist == "." || dist == "/" || strings.HasPrefix(dist, "..") {
		return fmt.Errorf("refusing to remove %q", cfg.Dist)
	}
	if _, err := os.Stat(dist); os.IsNotExist(err) {
		fmt.Fprintf(stdout, "nothing to clean in %s\n", dist)
		return nil
	}
	if *dryRun {
		fmt.Fprintf(stdout, "would remove %s\n", dist)
		return nil
	}
	if err := os.RemoveAll(dist); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "removed %s\n", dist)
	return nil
}
