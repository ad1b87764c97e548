// Command socks5proxy runs the standalone SOCKS5 relay on its own, useful
// for tunneling traffic to a node behind a restrictive network without
// spinning up a full snakenode. Takes one optional positional port
// argument; defaults to 5245 per the companion relay's spec.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"snakemesh/internal/socks5"
)

const defaultPort = 5245

func main() {
	port := defaultPort
	if len(os.Args) > 1 {
		p, err := strconv.Atoi(os.Args[1])
		if err != nil {
			log.Fatalf("socks5proxy: invalid port %q: %v", os.Args[1], err)
		}
		port = p
	}

	addr := net.JoinHostPort("0.0.0.0", fmt.Sprintf("%d", port))
	srv, err := socks5.NewServer(addr)
	if err != nil {
		log.Fatalf("socks5proxy: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("socks5proxy: listening on %s", addr)
	if err := srv.Serve(ctx); err != nil {
		log.Fatalf("socks5proxy: %v", err)
	}
	log.Printf("socks5proxy: shut down")
}
