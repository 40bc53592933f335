// Package main implements the entry point for the cryptique maintenance
// server: the task orchestrator, the retention jobs and the HTTP API
// around them.
package main

import (
	"context"
	"log"
)

func main() {
	app, err := newApplication(context.Background())
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.cleanup()

	if err := app.run(context.Background()); err != nil {
		log.Fatalf("Server exited with error: %v", err)
	}
}
