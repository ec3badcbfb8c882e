// Command storefront serves the storefront transaction API.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/muraguri00/zalora-luxury/internal/app/runtime"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := runtime.NewApplication(ctx)
	if err != nil {
		log.Fatalf("Failed to build storefront: %v", err)
	}

	runErr := application.Run(ctx)
	if runErr != nil {
		log.Printf("Server error: %v", runErr)
	}

	log.Println("Shutting down...")
	if err := application.Shutdown(context.Background()); err != nil {
		log.Printf("Shutdown error: %v", err)
		os.Exit(1)
	}
	if runErr != nil {
		os.Exit(1)
	}
}
