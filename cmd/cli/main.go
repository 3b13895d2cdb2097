package main

import (
	"context"
	"log"
	"os"

	"github.com/Sonicx161/aiomanager/internal/buildinfo"
	"github.com/Sonicx161/aiomanager/internal/client/cli"
	"github.com/Sonicx161/aiomanager/internal/client/config"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := cli.NewApp(cfg)

	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	app.Run(ctx)

}
