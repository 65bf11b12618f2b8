package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/decred/slog"

	"github.com/vctt94/pongtourney/server"
	"github.com/vctt94/pongtourney/server/serverdb"
)

func realMain() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	bknd := slog.NewBackend(os.Stdout)
	log := bknd.Logger("SRV")
	if level, ok := slog.LevelFromString(cfg.DebugLevel); ok {
		log.SetLevel(level)
	}

	var db serverdb.ServerDB
	if cfg.DBDSN != "" {
		db, err = serverdb.NewGormDB(cfg.DBDSN)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		log.Infof("using postgres storage")
	} else {
		db = serverdb.NewMemDB()
		log.Infof("using in-memory storage")
	}

	srv, err := server.NewServer(server.ServerConfig{
		ListenAddr: cfg.ListenAddr,
		DB:         db,
		Log:        log,
		TickHz:     cfg.TickHz,
		MaxScore:   cfg.MaxScore,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}

func main() {
	if err := realMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
