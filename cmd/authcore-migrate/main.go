// authcore-migrate applies the identity schema from embedded SQL.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/MrEthical07/authcore/config"
	"github.com/MrEthical07/authcore/repository/postgres"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	configFile := flag.String("config", "", "optional config file")
	flag.Parse()

	settings, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if settings.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "AUTHCORE_DATABASE_URL is not set")
		os.Exit(1)
	}

	if err := postgres.Migrate(settings.DatabaseURL, postgres.Direction(*direction)); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}
