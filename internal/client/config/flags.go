package config

import (
	"flag"
	"os"
	"time"

	"github.com/Sonicx161/aiomanager/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the addon service API
//	-r string   base URL of the remote sync store
//	-p string   base URL of the failover authority
//	-d string   path of the local database
//	-u string   remote snapshot id
//	-i int      failover check interval in seconds
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-r", "-p", "-d", "-u", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.StremioAPIURL, "a", cfg.StremioAPIURL, "base URL of the addon service API")
	fs.StringVar(&cfg.SyncServerURL, "r", cfg.SyncServerURL, "base URL of the remote sync store")
	fs.StringVar(&cfg.AutopilotURL, "p", cfg.AutopilotURL, "base URL of the failover authority")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "path of the local database")
	fs.StringVar(&cfg.SyncID, "u", cfg.SyncID, "remote snapshot id")
	checkInterval := fs.Int("i", int(cfg.CheckInterval.Seconds()), "failover check interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.CheckInterval = time.Duration(*checkInterval) * time.Second
}
