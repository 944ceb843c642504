package ingest

// concurrent.go: worker pool para descargar los trades de varias wallets en
// paralelo. El rate limiter del cliente HTTP sigue acotando el ritmo de la API;
// el pool solo solapa las esperas de red.

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/ports"
)

const defaultWorkers = 4

type fetchJob struct {
	index  int
	wallet string
	since  time.Time
}

type fetchResult struct {
	wallet string
	since  time.Time
	trades []domain.LeaderTrade
	err    error
}

// fetchConcurrent descarga cada job con a lo sumo workers peticiones en vuelo.
// Los resultados conservan el orden de jobs para que la inserción sea
// determinista.
func fetchConcurrent(ctx context.Context, source ports.TradeSource, jobs []fetchJob, workers int) []fetchResult {
	if workers <= 0 {
		workers = defaultWorkers
	}
	workers = min(workers, len(jobs))

	results := make([]fetchResult, len(jobs))
	workCh := make(chan fetchJob, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range workCh {
				trades, err := source.FetchLeaderTrades(ctx, j.wallet, j.since)
				results[j.index] = fetchResult{wallet: j.wallet, since: j.since, trades: trades, err: err}
			}
		}()
	}

	for _, j := range jobs {
		workCh <- j
	}
	close(workCh)
	wg.Wait()

	slog.Debug("concurrent fetch complete", "wallets", len(jobs), "workers", workers)
	return results
}
