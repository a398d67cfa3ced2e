package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/whispr-im/whispr/internal/api"
	"github.com/whispr-im/whispr/internal/config"
	"github.com/whispr-im/whispr/internal/core"
	"github.com/whispr-im/whispr/internal/store"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if config.AppConfig.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	// Command line flags for development data management
	seedFlag := flag.Bool("seed", false, "Seed the database with sample data and exit")
	resetFlag := flag.Bool("reset", false, "Drop and recreate all tables, then exit")
	flag.Parse()

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbStore.Close()

	if *resetFlag {
		log.Println("Resetting database...")
		if err := dbStore.Reset(); err != nil {
			log.Fatalf("Database reset failed: %v", err)
		}
		log.Println("Database reset complete. Exiting.")
		os.Exit(0)
	}

	if *seedFlag {
		log.Println("Seeding database with sample data...")
		if err := dbStore.Seed(); err != nil {
			log.Fatalf("Database seeding failed: %v", err)
		}
		log.Println("Database seeding complete. Exiting.")
		os.Exit(0)
	}

	// Initialize Messenger service
	messengerService := core.NewMessengerService(dbStore)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(messengerService, config.AppConfig.MaxUploadBytes)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give active connections time to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}
