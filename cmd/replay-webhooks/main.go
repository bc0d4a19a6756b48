// Command replay-webhooks feeds every *.json payload of a directory through
// the webhook ingester, as if the provider had posted them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"whatsapp-relay/db"
	"whatsapp-relay/events"
	"whatsapp-relay/logger"
	"whatsapp-relay/utils"
	"whatsapp-relay/whatsapp"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "configuration file")
	dir := flag.String("dir", "sample_payloads", "directory containing webhook payload files")
	flag.Parse()

	config, err := utils.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger.Init(logger.Config{
		Service: "replay-webhooks",
		Version: config.Logging.Version,
		Env:     logger.ParseEnv(config.Logging.Env),
		Backend: logger.Backend(config.Logging.Backend),
		Debug:   config.Logging.Debug,
	})

	if err := run(context.Background(), config, *dir); err != nil {
		slog.Error("replay failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, config *utils.Config, dir string) error {
	store, err := db.Open(ctx, config.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := seedIfMissing(dir); err != nil {
		return err
	}

	files, err := utils.ListJSONFiles(dir)
	if err != nil {
		return fmt.Errorf("list %s: %w", dir, err)
	}
	if len(files) == 0 {
		slog.Info("no JSON files found, add webhook payloads to the directory", "dir", dir)
		return nil
	}
	slog.Info("processing payload files", "count", len(files), "dir", dir)

	ingester := whatsapp.NewIngester(store, events.Nop{})
	var total whatsapp.Result
	for _, name := range files {
		body, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			slog.Error("read failed", "file", name, "error", err)
			continue
		}

		res, err := ingester.IngestTagged(ctx, body, name)
		if errors.Is(err, whatsapp.ErrMalformedEnvelope) {
			slog.Warn("skipping malformed payload", "file", name, "error", err)
			continue
		}
		if err != nil {
			slog.Error("processing failed", "file", name, "error", err)
			continue
		}

		slog.Info("processed", "file", name,
			"inserted", res.Inserted,
			"duplicates", res.Duplicates,
			"updated", res.Updated,
			"unmatched", res.Unmatched,
		)
		total.Inserted += res.Inserted
		total.Duplicates += res.Duplicates
		total.Updated += res.Updated
		total.Unmatched += res.Unmatched
	}

	count, err := store.CountMessages(ctx)
	if err != nil {
		return fmt.Errorf("count messages: %w", err)
	}
	slog.Info("replay complete",
		"inserted", total.Inserted,
		"duplicates", total.Duplicates,
		"updated", total.Updated,
		"unmatched", total.Unmatched,
		"stored_messages", count,
	)
	fmt.Printf("Total messages in database: %d\n", count)
	return nil
}

// seedIfMissing creates dir with two sample payloads when it does not exist.
func seedIfMissing(dir string) error {
	if _, err := os.Stat(dir); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	slog.Info("creating sample payload directory", "dir", dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, p := range whatsapp.SamplePayloads(time.Now().Unix()) {
		if err := os.WriteFile(filepath.Join(dir, p.Filename), p.Body, 0o644); err != nil {
			return err
		}
		slog.Info("created sample payload", "file", p.Filename)
	}
	return nil
}
