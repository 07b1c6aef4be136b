// Command pincode-ingest loads courier partner coverage exports into the
// serviceable_pincodes table. Each export is a gzip-compressed file with one
// pincode per line; a pincode is serviceable when any partner covers it.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/infinitecrafts/storefront/internal/repository"
)

const (
	// Indian pincodes are six digits, so the space tops out at a million.
	bloomCapacity = 2_000_000
	bloomFPR      = 0.0001
	batchSize     = 1_000
	progressEvery = 100_000
	pincodeLen    = 6
)

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data/coverage", "directory containing partner *.gz coverage exports")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("pincode ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("pincode ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.gz"))
	if err != nil {
		return errors.Wrap(err, "list coverage files")
	}
	if len(files) == 0 {
		return errors.Errorf("no coverage files found in %s", dataDir)
	}

	slog.Info("ingesting coverage exports", slog.Int("files", len(files)))

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	sink := newPincodeSink(pool)

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(ingestFile(ctx, i, f, sink))
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := sink.Flush(ctx); err != nil {
		return errors.Wrap(err, "flush remaining pincodes")
	}

	slog.Info("coverage loaded", slog.Uint64("pincodes", sink.Written()))
	return nil
}

func ingestFile(ctx context.Context, idx int, path string, sink *pincodeSink) func() error {
	return func() error {
		var count uint64
		if err := streamGzLines(ctx, path, func(line string) error {
			if !validPincode(line) {
				return nil
			}
			count++
			if count%progressEvery == 0 {
				slog.Info("ingest progress",
					slog.Int("file", idx+1),
					slog.Uint64("pincodes", count),
				)
			}
			return sink.Add(ctx, line)
		}); err != nil {
			return errors.Wrapf(err, "ingest file %s", path)
		}

		slog.Info("ingest complete",
			slog.Int("file", idx+1),
			slog.String("path", path),
			slog.Uint64("pincodes", count),
		)
		return nil
	}
}

func validPincode(s string) bool {
	if len(s) != pincodeLen {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// streamGzLines opens a gzip-compressed file and calls fn for each line.
func streamGzLines(ctx context.Context, path string, fn func(line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

// pincodeSink deduplicates pincodes across partner exports with a bloom
// filter and writes them to the database in batches. The ON CONFLICT clause
// covers bloom false negatives; false positives only skip a duplicate write.
type pincodeSink struct {
	pool *pgxpool.Pool

	mu      sync.Mutex
	seen    *bloom.BloomFilter
	pending []string
	written uint64
}

func newPincodeSink(pool *pgxpool.Pool) *pincodeSink {
	return &pincodeSink{
		pool: pool,
		seen: bloom.NewWithEstimates(bloomCapacity, bloomFPR),
	}
}

func (s *pincodeSink) Add(ctx context.Context, pincode string) error {
	s.mu.Lock()
	if s.seen.TestOrAddString(pincode) {
		s.mu.Unlock()
		return nil
	}
	s.pending = append(s.pending, pincode)
	if len(s.pending) < batchSize {
		s.mu.Unlock()
		return nil
	}
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	return s.writeBatch(ctx, batch)
}

func (s *pincodeSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	return s.writeBatch(ctx, batch)
}

func (s *pincodeSink) Written() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

func (s *pincodeSink) writeBatch(ctx context.Context, pincodes []string) error {
	b := &pgx.Batch{}
	for _, p := range pincodes {
		b.Queue("INSERT INTO serviceable_pincodes (pincode) VALUES ($1) ON CONFLICT (pincode) DO NOTHING", p)
	}

	res := s.pool.SendBatch(ctx, b)
	defer func() { _ = res.Close() }()

	for range pincodes {
		if _, err := res.Exec(); err != nil {
			return errors.Wrap(err, "insert pincode batch")
		}
	}

	s.mu.Lock()
	s.written += uint64(len(pincodes))
	s.mu.Unlock()
	return nil
}
