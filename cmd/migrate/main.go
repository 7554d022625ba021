// migrate applies or rolls back the embedded schema migrations.
package main

import (
	"flag"
	"fmt"
	"os"

	"transient-broker/backend/internal/config"
	"transient-broker/backend/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		fatalf("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	var res migrate.Result
	switch *direction {
	case "up":
		res, err = migrate.Up(cfg.DatabaseURL)
	case "down":
		res, err = migrate.Down(cfg.DatabaseURL)
	default:
		fatalf("direction must be up or down, got %q", *direction)
	}
	if err != nil {
		fatalf("migrate %s: %v", *direction, err)
	}

	if !res.Changed {
		fmt.Printf("schema already at version %d\n", res.Version)
		return
	}
	fmt.Printf("schema now at version %d\n", res.Version)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
