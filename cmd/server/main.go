// Command server runs the session service: the HTTP auth API, the gRPC
// health endpoint and the expiry sweeper.
package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/sessionkeeper/internal/server"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/config"
)

func main() {
	ctx := context.Background()

	app, err := server.NewApp(ctx, config.LoadConfig())
	if err != nil {
		log.Fatalf("startup: %v", err)
	}

	app.Run(ctx)
}
