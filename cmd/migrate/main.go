package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"sitestats/internal/config"
	"sitestats/internal/container"
	"sitestats/internal/repository"
	"sitestats/pkg/database"
	"sitestats/pkg/logger"
	"sitestats/pkg/redis"
)

const usage = "Usage: migrate [up|drop|import <dir>|export <dir>]"

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLog, err := logger.NewForEnvironment(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	command := os.Args[1]

	switch command {
	case "drop":
		if cfg.StorageDriver == config.DriverRedis {
			if err := dropRedisDocuments(ctx, cfg, appLog); err != nil {
				log.Fatalf("Failed to drop documents: %v", err)
			}
			fmt.Println("✅ Redis documents dropped successfully")
			return
		}
		fallthrough
	case "up":
		if cfg.DatabaseURL == "" {
			log.Fatal("DATABASE_URL environment variable is not set")
		}
		db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if command == "up" {
			if err := db.CreateDocumentTable(ctx); err != nil {
				log.Fatalf("Failed to create tables: %v", err)
			}
			fmt.Println("✅ Documents table created successfully")
		} else {
			if err := db.DropDocumentTable(ctx); err != nil {
				log.Fatalf("Failed to drop tables: %v", err)
			}
			fmt.Println("✅ Documents table dropped successfully")
		}

	case "import", "export":
		if len(os.Args) < 3 {
			fmt.Println(usage)
			os.Exit(1)
		}
		if err := copyDocuments(ctx, cfg, appLog, command, os.Args[2]); err != nil {
			log.Fatalf("Failed to %s documents: %v", command, err)
		}

	default:
		fmt.Printf("Unknown command: %s\n", command)
		fmt.Println(usage)
		os.Exit(1)
	}
}

// copyDocuments moves stats.json, visits.json and online.json between dir and
// the configured storage driver while holding the stats lock
func copyDocuments(ctx context.Context, cfg *config.Config, appLog *logger.Logger, command, dir string) error {
	if command == "import" {
		if _, err := os.Stat(dir); err != nil {
			return fmt.Errorf("source directory: %w", err)
		}
	}

	c, err := container.New(ctx, cfg, appLog)
	if err != nil {
		return err
	}
	defer c.Close()

	files, err := repository.NewFileStore(dir)
	if err != nil {
		return err
	}

	fileRepos := repository.NewRepositories(files, appLog)
	driverRepos := repository.NewRepositories(c.Store, appLog)

	release, err := c.Locker.Acquire(ctx, repository.LockName)
	if err != nil {
		return fmt.Errorf("failed to lock stats storage: %w", err)
	}
	defer release()

	src, dst := fileRepos, driverRepos
	if command == "export" {
		src, dst = driverRepos, fileRepos
	}

	report, err := repository.CopyDocuments(ctx, src, dst)
	if err != nil {
		return err
	}

	fmt.Printf("✅ %sed %d visitors (%d online), totals %d visitors / %d views via %s storage\n",
		command, report.Visitors, report.OnlineUsers, report.TotalVisitors, report.TotalViews, cfg.StorageDriver)
	return nil
}

// dropRedisDocuments deletes the stats documents and settings hash for the configured environment
func dropRedisDocuments(ctx context.Context, cfg *config.Config, appLog *logger.Logger) error {
	client, err := redis.NewClient(cfg.RedisURL, cfg.Environment, appLog.Named("redis").Logger)
	if err != nil {
		return err
	}
	defer client.Close()

	return repository.NewRedisStore(client).Drop(ctx)
}
