package main

import (
	"context"
	"log"

	"livechat-backend/internal/app"
	"livechat-backend/internal/env"
)

func main() {
	env.Load()
	ctx := context.Background()

	application, err := app.New(ctx)
	if err != nil {
		log.Fatalf("init failed: %v", err)
	}
	defer application.Close()

	server := application.WidgetServer(env.GetOrDefault(env.WidgetAddr, ":82"))
	if err := application.Serve(ctx, server); err != nil {
		log.Printf("server stopped: %v", err)
	}
}
