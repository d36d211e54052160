package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/md-rashed-zaman/dentalbook/libs/config"
	"github.com/md-rashed-zaman/dentalbook/libs/db"
	"github.com/md-rashed-zaman/dentalbook/libs/runtime"
	"github.com/md-rashed-zaman/dentalbook/services/booking-service/migrations"
)

// Usage: migrate            apply pending migrations
//        migrate force <v>  mark the schema as version v
func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := runtime.NewLogger("booking-migrate", config.String("LOG_LEVEL", "info"))

	databaseURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		logger.Error("missing configuration", "err", err)
		os.Exit(1)
	}

	if len(os.Args) >= 3 && os.Args[1] == "force" {
		version, err := strconv.Atoi(os.Args[2])
		if err != nil {
			logger.Error("invalid version", "value", os.Args[2], "err", err)
			os.Exit(2)
		}
		if err := db.Force(databaseURL, migrations.FS, version); err != nil {
			logger.Error("force failed", "err", err)
			os.Exit(1)
		}
		logger.Info("schema version forced", "version", version)
		return
	}

	version, err := db.Migrate(databaseURL, migrations.FS)
	if err != nil {
		logger.Error("migration failed", "err", err)
		os.Exit(1)
	}
	logger.Info("migrations complete", "version", version)
}
