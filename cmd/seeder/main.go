//cmd/seeder/main.go
package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"

	"github.com/unclebandit/crm-mailer/internal/config"
	"github.com/unclebandit/crm-mailer/internal/db"
	"github.com/unclebandit/crm-mailer/internal/logger"
)

func main() {
	dir := flag.String("dir", "seed", "directory holding the seed SQL files")
	schemaOnly := flag.Bool("schema-only", false, "apply schema.sql and skip sample data")
	flag.Parse()

	log := logger.New("info")
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	conn, err := db.Open(context.Background(), cfg.Database.DSN(), log)
	if err != nil {
		log.Error("failed to connect", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	seedFiles := []string{"schema.sql"}
	if !*schemaOnly {
		seedFiles = append(seedFiles, "contacts.sql", "templates.sql")
	}

	for _, name := range seedFiles {
		file := filepath.Join(*dir, name)
		content, err := os.ReadFile(file)
		if err != nil {
			log.Error("failed to read seed file", "file", file, "error", err)
			os.Exit(1)
		}
		if _, err := conn.Exec(string(content)); err != nil {
			log.Error("failed to execute seed file", "file", file, "error", err)
			os.Exit(1)
		}
		log.Info("seeded", "file", file)
	}

	log.Info("database seeding completed")
}
