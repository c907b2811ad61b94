// Command example is a small blog built with hxrender.
//
//	go run . build
//	go run . serve
//	go run . export -o site
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pthm/hxrender"
	"github.com/pthm/hxrender/example/pages"
	"github.com/pthm/hxrender/lib/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := NewStore()
	opts := hxrender.Options{
		Shell: pages.Shell,
		GlobalBuildState: func(ctx context.Context) (any, error) {
			return pages.Site{Name: "hxrender blog"}, nil
		},
	}

	if err := cli.Run(ctx, os.Args[1:], opts, pages.All(store)...); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
