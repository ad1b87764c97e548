// Command snakenode runs one peer of a snakemesh game: it either hosts a
// fresh game or joins an existing one, serves a read-only dashboard, and
// keeps running until interrupted. Process wiring follows
// sonpython-slether/server/main.go's shape (one main that builds its
// collaborators, starts their loops, and blocks), with
// golang.org/x/sync/errgroup supervising the background goroutines instead
// of a bare sync.WaitGroup, since any of them failing should bring the
// whole node down.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"snakemesh/internal/config"
	"snakemesh/internal/dashboard"
	"snakemesh/internal/engine"
	"snakemesh/internal/transport"
)

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	cfg, err := config.Parse(fs, os.Args[1:])
	if err != nil {
		log.Fatalf("snakenode: %v", err)
	}

	ep, err := transport.New(transport.MulticastGroup, transport.MulticastPort)
	if err != nil {
		log.Fatalf("snakenode: %v", err)
	}

	eng := engine.New(engine.Config{
		GameName:      cfg.Game,
		Width:         cfg.Width,
		Height:        cfg.Height,
		FoodStatic:    cfg.FoodStatic,
		StateDelayMS:  cfg.StateDelayMS,
		ClientName:    cfg.Name,
		RequestedRole: cfg.Role,
	}, ep, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ep.Serve(gctx) })

	var masterAddr *net.UDPAddr
	host := cfg.Join == ""
	if !host {
		addr, err := net.ResolveUDPAddr("udp4", cfg.Join)
		if err != nil {
			log.Fatalf("snakenode: resolve -join address %q: %v", cfg.Join, err)
		}
		masterAddr = addr
	}
	if err := eng.Start(gctx, host, masterAddr); err != nil {
		log.Fatalf("snakenode: %v", err)
	}

	dash := dashboard.NewServer(cfg.DashboardAddr, eng, time.Duration(cfg.StateDelayMS)*time.Millisecond)
	g.Go(func() error { return dash.Serve(gctx) })

	mode := "hosting"
	if !host {
		mode = "joining " + cfg.Join
	}
	log.Printf("snakenode: %s (%s) %s game %q on %dx%d, dashboard at %s",
		cfg.Name, cfg.Role, mode, cfg.Game, cfg.Width, cfg.Height, cfg.DashboardAddr)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("snakenode: %v", err)
	}
	eng.Stop()
}
