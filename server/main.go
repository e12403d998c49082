package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"dealer/server/comms"
	"dealer/server/engine"
	"dealer/server/store"
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoiDef(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func main() {
	_ = godotenv.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(getenv("LOG_LEVEL", "info")); err == nil {
		log.SetLevel(lvl)
	}

	var migrate bool
	for _, a := range os.Args[1:] {
		if a == "--migrate" {
			migrate = true
		}
	}

	var variant engine.Variant
	if v := getenv("GAME_VARIANT", ""); v != "" {
		parsed, err := engine.ParseVariant(v)
		if err != nil {
			log.WithError(err).Fatal("bad GAME_VARIANT")
		}
		variant = parsed
	}

	cfg := comms.Config{
		Addr:          getenv("LISTEN_ADDR", ":7777"),
		TableSize:     atoiDef(os.Getenv("TABLE_SIZE"), 2),
		Variant:       variant,
		StartingStack: atoiDef(os.Getenv("STARTING_STACK"), 200),
		Game: engine.Config{
			Ante: atoiDef(os.Getenv("ANTE"), 5),
			SB:   atoiDef(os.Getenv("SMALL_BLIND"), 1),
			BB:   atoiDef(os.Getenv("BIG_BLIND"), 2),
		},
		TurnTimeout:  time.Duration(atoiDef(os.Getenv("TURN_TIMEOUT_SECONDS"), 30)) * time.Second,
		ReadyTimeout: time.Duration(atoiDef(os.Getenv("READY_TIMEOUT_SECONDS"), 15)) * time.Second,
	}
	if cfg.TableSize < 2 || cfg.TableSize > 6 {
		log.Fatalf("TABLE_SIZE %d out of range [2,6]", cfg.TableSize)
	}

	var gw store.Gateway
	if dsn := getenv("DATABASE_URL", ""); dsn != "" {
		db, err := store.Open(dsn)
		if err != nil {
			log.WithError(err).Fatal("open database")
		}
		defer db.Close()
		if migrate {
			if err := store.Migrate(context.Background(), db); err != nil {
				log.WithError(err).Fatal("migrate")
			}
			log.Info("migrated")
			return
		}
		if err := db.Ping(context.Background()); err != nil {
			log.WithError(err).Fatal("database unreachable")
		}
		gw = db
	} else {
		if migrate {
			log.Fatal("--migrate needs DATABASE_URL")
		}
		log.Warn("DATABASE_URL unset, stats will not survive restarts")
		gw = store.NewMemory()
	}

	srv := comms.NewServer(cfg, gw, log)

	admin := &http.Server{
		Addr:         getenv("ADMIN_ADDR", ":8080"),
		Handler:      Router(gw, srv),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		log.WithField("addr", admin.Addr).Info("admin api listening")
		if err := admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("admin api")
		}
	}()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = admin.Shutdown(ctx)
		_ = srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil {
		log.WithError(err).Fatal("game server")
	}
}
