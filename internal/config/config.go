// Package config parses the command-line surface shared by cmd/snakenode,
// grounded on IdkRandomTry-BeatMyBot-v1/main.go's flag.String/flag.Int CLI —
// the one pack repo with a real flag-parsed entry point.
package config

import (
	"flag"
	"fmt"

	"snakemesh/internal/wire"
)

// NodeConfig is every setting a snakenode process needs at startup.
type NodeConfig struct {
	Name          string
	Game          string
	Width         int
	Height        int
	FoodStatic    int
	StateDelayMS  int
	Role          wire.Role
	Join          string
	DashboardAddr string
}

// Parse builds a NodeConfig from the given args (main passes its own
// FlagSet and os.Args[1:]), matching BeatMyBot's flag layout: required
// values get sensible defaults here since, unlike bot1/bot2, every flag is
// optional.
func Parse(fs *flag.FlagSet, args []string) (NodeConfig, error) {
	name := fs.String("name", "player", "Display name for this node")
	game := fs.String("game", "snakemesh", "Game name advertised in announcements")
	width := fs.Int("width", 40, "Field width in cells")
	height := fs.Int("height", 30, "Field height in cells")
	foodStatic := fs.Int("food-static", 5, "Minimum food count maintained on the field")
	stateDelayMS := fs.Int("state-delay-ms", 300, "Milliseconds between state broadcasts")
	role := fs.String("role", "normal", "Role to request when joining an existing game: normal|viewer")
	join := fs.String("join", "", "host:port of an existing game to join; empty hosts a new one")
	dashboardAddr := fs.String("dashboard-addr", ":8787", "Address for the read-only stats/websocket dashboard")

	if err := fs.Parse(args); err != nil {
		return NodeConfig{}, err
	}

	var parsedRole wire.Role
	switch *role {
	case "normal":
		parsedRole = wire.RoleNormal
	case "viewer":
		parsedRole = wire.RoleViewer
	default:
		return NodeConfig{}, fmt.Errorf("config: unknown -role %q (want normal or viewer)", *role)
	}

	if *width <= 0 || *height <= 0 {
		return NodeConfig{}, fmt.Errorf("config: -width and -height must be positive")
	}
	if *stateDelayMS <= 0 {
		return NodeConfig{}, fmt.Errorf("config: -state-delay-ms must be positive")
	}

	return NodeConfig{
		Name:         *name,
		Game:         *game,
		Width:        *width,
		Height:       *height,
		FoodStatic:   *foodStatic,
		StateDelayMS: *stateDelayMS,
		Role:         parsedRole,
		Join:         *join,
		DashboardAddr: *dashboardAddr,
	}, nil
}
