// Package cli is the command line of an hxrender site. A site's main
// package registers its templates and hands over to Run:
//
//	func main() {
//	    app := hxrender.Options{Shell: shell}
//	    if err := cli.Run(context.Background(), os.Args[1:], app, index, post); err != nil {
//	        fmt.Fprintf(os.Stderr, "error: %v\n", err)
//	        os.Exit(1)
//	    }
//	}
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/pthm/hxrender"
	"github.com/pthm/hxrender/lib/store"
)

// ConfigEnv names the environment variable selecting the config file.
const ConfigEnv = "HXRENDER_CONFIG"

// CLI runs commands against a set of templates.
type CLI struct {
	Options   hxrender.Options
	Templates []hxrender.Entity

	Stdout io.Writer
	Stderr io.Writer
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// Run runs the command line in args (without the program name).
func Run(ctx context.Context, args []string, opts hxrender.Options, templates ...hxrender.Entity) error {
	c := &CLI{Options: opts, Templates: templates}
	return c.Run(ctx, args)
}

type globalFlags struct {
	config   string
	dist     string
	logLevel string
}

func (c *CLI) stdout() io.Writer {
	if c.Stdout == nil {
		return os.Stdout
	}
	return c.Stdout
}

func (c *CLI) stderr() io.Writer {
	if c.Stderr == nil {
		return os.Stderr
	}
	return c.Stderr
}

func (c *CLI) getenv(name string) string {
	if c.Getenv == nil {
		return os.Getenv(name)
	}
	return c.Getenv(name)
}

// Run dispatches args[0] to its command.
func (c *CLI) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		c.usage()
		return errors.New("no command given")
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "build":
		return c.runBuild(ctx, rest)
	case "export":
		return c.runExport(ctx, rest)
	case "serve":
		return c.runServe(ctx, rest)
	case "help", "-h", "--help":
		c.usage()
		return nil
	default:
		c.usage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func (c *CLI) usage() {
	fmt.Fprint(c.stderr(), `Usage:
  <site> <command> [flags]

Commands:
  build     Prerender every template into the stores under dist
  export    Build and write the site as plain HTML files
  serve     Serve the built site, building first if needed
  help      Show this help

Global flags:
  --config      config file (default $`+ConfigEnv+` or hxrender.yaml)
  --dist        override the dist directory
  --log-level   debug, info, warn or error
`)
}

func (c *CLI) flagSet(name string, g *globalFlags) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(c.stderr())
	def := c.getenv(ConfigEnv)
	if def == "" {
		def = "hxrender.yaml"
	}
	fs.StringVar(&g.config, "config", def, "config file")
	fs.StringVar(&g.dist, "dist", "", "dist directory (overrides config)")
	fs.StringVar(&g.logLevel, "log-level", "info", "log level")
	return fs
}

// setup loads the config and builds the app with its stores opened.
func (c *CLI) setup(g globalFlags) (*hxrender.App, hxrender.Config, func() error, error) {
	cfg, err := hxrender.LoadConfig(g.config)
	if err != nil {
		return nil, cfg, nil, fmt.Errorf("load config: %w", err)
	}
	if g.dist != "" {
		cfg.Dist = g.dist
	}

	opts := c.Options
	if opts.Logger == nil {
		var level slog.Level
		if err := level.UnmarshalText([]byte(g.logLevel)); err != nil {
			return nil, cfg, nil, fmt.Errorf("--log-level: %w", err)
		}
		opts.Logger = slog.New(slog.NewTextHandler(c.stderr(), &slog.HandlerOptions{Level: level}))
	}
	if opts.Locales.Default == "" {
		opts.Locales = cfg.AppLocales()
	}
	if opts.BuildConcurrency == 0 {
		opts.BuildConcurrency = cfg.Build.Concurrency
	}
	closeFn := func() error { return nil }
	if opts.Immutable == nil || opts.Mutable == nil {
		opts.Immutable, opts.Mutable, closeFn, err = cfg.OpenStores()
		if err != nil {
			return nil, cfg, nil, fmt.Errorf("open stores: %w", err)
		}
	}
	return hxrender.New(opts).Add(c.Templates...), cfg, closeFn, nil
}

func (c *CLI) runBuild(ctx context.Context, args []string) error {
	var g globalFlags
	fs := c.flagSet("build", &g)
	if err := fs.Parse(args); err != nil {
		return err
	}

	app, _, closeFn, err := c.setup(g)
	if err != nil {
		return err
	}
	defer closeFn()

	report, err := hxrender.NewBuilder(app).Build(ctx)
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}
	c.printReport(report)
	return nil
}

func (c *CLI) runExport(ctx context.Context, args []string) error {
	var g globalFlags
	var out string
	fs := c.flagSet("export", &g)
	fs.StringVarP(&out, "out", "o", "", "output directory (default <dist>/exported)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	app, cfg, closeFn, err := c.setup(g)
	if err != nil {
		return err
	}
	defer closeFn()

	if out == "" {
		out = filepath.Join(cfg.Dist, "exported")
	}
	report, err := hxrender.NewBuilder(app).Export(ctx, store.NewFS(out))
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	c.printReport(report)
	fmt.Fprintf(c.stdout(), "exported to %s\n", out)
	return nil
}

func (c *CLI) runServe(ctx context.Context, args []string) error {
	var g globalFlags
	var addr string
	var rebuild bool
	fs := c.flagSet("serve", &g)
	fs.StringVar(&addr, "addr", "", "listen address (default :<server.port>)")
	fs.BoolVar(&rebuild, "build", false, "build before serving even if a build exists")
	if err := fs.Parse(args); err != nil {
		return err
	}

	app, cfg, closeFn, err := c.setup(g)
	if err != nil {
		return err
	}
	defer closeFn()

	renderCfg, err := hxrender.LoadRenderConfig(ctx, app.Immutable())
	switch {
	case rebuild || errors.Is(err, hxrender.ErrMissingBuildData):
		report, err := hxrender.NewBuilder(app).Build(ctx)
		if err != nil {
			return fmt.Errorf("build: %w", err)
		}
		renderCfg = report.Config
	case err != nil:
		return fmt.Errorf("load render config: %w", err)
	}

	if addr == "" {
		addr = fmt.Sprintf(":%d", cfg.Server.Port)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           hxrender.NewServer(app, renderCfg).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		app.Logger().Info("listening", "addr", ln.Addr().String(), "routes", len(renderCfg))
		fmt.Fprintf(c.stdout(), "listening on %s\n", ln.Addr())
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (c *CLI) printReport(r *hxrender.BuildReport) {
	w := c.stdout()
	fmt.Fprintf(w, "rendered %d pages in %s\n", r.Rendered, r.Duration.Round(time.Millisecond))
	for _, route := range r.Config.Routes() {
		display := route
		if display == "" {
			display = "/"
		}
		fmt.Fprintf(w, "  %-30s %s\n", display, r.Config[route])
	}
	if len(r.Deferred) > 0 {
		fmt.Fprintf(w, "deferred widgets: %s\n", strings.Join(r.Deferred, ", "))
	}
}
