package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	natsadapter "github.com/samirrijal/policetracker/internal/adapters/nats"
	"github.com/samirrijal/policetracker/internal/adapters/postgres"
	"github.com/samirrijal/policetracker/internal/adapters/wazefeed"
	"github.com/samirrijal/policetracker/internal/core/ports"
	"github.com/samirrijal/policetracker/internal/core/usecases"
	"github.com/samirrijal/policetracker/internal/pkg/config"
	"github.com/samirrijal/policetracker/internal/pkg/logging"
)

const batchSize = 500

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: importer <dump.json|->")
	}

	cfg, err := config.Load("policetracker-importer")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup("policetracker-importer", cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()

	var in io.Reader = os.Stdin
	source := "stdin"
	if os.Args[1] != "-" {
		f, err := os.Open(os.Args[1])
		if err != nil {
			log.Fatalf("open dump: %v", err)
		}
		defer f.Close()
		in = f
		source = filepath.Base(os.Args[1])
	}

	alerts, err := wazefeed.Decode(in)
	if err != nil {
		log.Fatalf("decode dump: %v", err)
	}

	db, err := postgres.New(ctx, cfg.Database.DSN(), 4)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	var publisher ports.EventPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, sessions will not be notified", "error", err)
	} else {
		defer pub.Close()
		publisher = pub
	}

	svc := usecases.NewAlertService(postgres.NewAlertRepo(db), nil, publisher)

	total := 0
	for start := 0; start < len(alerts); start += batchSize {
		end := min(start+batchSize, len(alerts))
		n, err := svc.Import(ctx, source, alerts[start:end])
		if err != nil {
			log.Fatalf("import batch %d-%d: %v", start, end, err)
		}
		total += n
		slog.Info("batch imported", "from", start, "to", end, "kept", n)
	}

	slog.Info("import complete", "records", len(alerts), "imported", total, "skipped", len(alerts)-total)
}
