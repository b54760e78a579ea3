// Package engine wires configuration, catalog, WAL, and full-text index
// components into a single runnable process lifecycle.
package engine

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/coredb/coredb/internal/archive"
	"github.com/coredb/coredb/internal/bgtask"
	"github.com/coredb/coredb/internal/bufmgr"
	"github.com/coredb/coredb/internal/catalog"
	"github.com/coredb/coredb/internal/config"
	"github.com/coredb/coredb/internal/ftindex"
	"github.com/coredb/coredb/internal/httpmw"
	"github.com/coredb/coredb/internal/observability"
	"github.com/coredb/coredb/internal/server"
	"github.com/coredb/coredb/internal/txn"
	"github.com/coredb/coredb/internal/wal"
)

// Engine owns every long-lived collaborator of the engine core: the
// catalog, WAL writer and checkpoint coordinator, transaction manager,
// background task processor, full-text index reader cache, and (when
// configured) an off-box archiver. It does not expose a query or
// ingest API surface — those are explicit Non-goals — only the narrow
// operations spec.md and SPEC_FULL.md name.
type Engine struct {
	cfg *config.Config

	catalog    *catalog.SQLiteCatalog
	registry   *wal.Registry
	writer     *wal.Writer
	checkpoint *wal.Coordinator
	txnMgr     *txn.Manager
	processor  *bgtask.Processor
	indexCache *ftindex.TableIndexReaderCache
	bufmgr     *bufmgr.Manager
	stats      *observability.EngineStats
	archiver   *archive.Archiver

	shutdown   *server.ShutdownManager
	healthSrv  *http.Server
}

// New validates cfg, ensures data directories exist, and returns an
// unstarted Engine.
func New(cfg *config.Config) (*Engine, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("create directories: %w", err)
	}
	return &Engine{cfg: cfg}, nil
}

// Start opens the catalog, replays the WAL to recover state, and brings
// up the writer, checkpoint coordinator, and background processor.
func (e *Engine) Start(ctx context.Context) error {
	var err error
	e.catalog, err = catalog.NewSQLiteCatalog(e.cfg.Catalog.DBPath, e.cfg.Catalog.SnapshotDir)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}

	e.registry = wal.NewRegistry(e.cfg.WAL.Dir)

	e.stats = observability.NewEngineStats(10 * time.Minute)

	// Wired before replay: a CreateIndex command replayed from the WAL
	// re-executes its index build against already-replayed row data, which
	// requires the buffer manager to already be in place.
	e.bufmgr = bufmgr.NewManager(e.cfg.Bufmgr.MaxBytes)
	e.catalog.SetIndexBuilder(e.bufmgr, e.cfg.Index.Dir)

	result, err := wal.Replay(e.registry, e.catalog, e.catalog)
	if err != nil {
		e.catalog.Close()
		return fmt.Errorf("replay WAL: %w", err)
	}
	if err := e.catalog.SeedFromReplay(result); err != nil {
		e.catalog.Close()
		return fmt.Errorf("seed catalog from replay: %w", err)
	}

	e.txnMgr = txn.NewManager(result.NextTxnID, result.SystemMaxCommitTS)
	e.processor = bgtask.NewProcessor(e.cfg.Workers.NumWorkers)
	e.indexCache = ftindex.NewTableIndexReaderCache()
	e.indexCache.SetStats(e.stats)

	e.checkpoint = wal.NewCoordinator(e.processor, e.catalog, e.txnMgr, nil, e.registry)
	e.checkpoint.SeedFromReplay(result.LastCheckpointTS, result.LastFullCheckpointTS)
	e.checkpoint.SetStats(e.stats)

	if e.cfg.Archive.Enabled {
		archiveCfg := archive.Config{
			Bucket:        e.cfg.Archive.Bucket,
			Region:        e.cfg.Archive.Region,
			Endpoint:      e.cfg.Archive.Endpoint,
			UsePathStyle:  e.cfg.Archive.UsePathStyle,
			WALPrefix:     e.cfg.Archive.WALPrefix,
			CatalogPrefix: e.cfg.Archive.CatalogPrefix,
		}
		e.archiver, err = archive.New(ctx, archiveCfg)
		if err != nil {
			e.catalog.Close()
			return fmt.Errorf("init archiver: %w", err)
		}
		e.checkpoint.SetArchiver(e.archiver)
		log.Printf("engine: archival enabled, bucket=%s", e.cfg.Archive.Bucket)
	}

	writerCfg := wal.WriterConfig{
		Registry:                        e.registry,
		FlushOption:                     translateFlushOption(e.cfg.WAL.FlushOption),
		WalSizeThreshold:                e.cfg.WAL.SizeThresholdBytes,
		DeltaCheckpointIntervalWALBytes: e.cfg.WAL.DeltaCheckpointIntervalBytes,
		Checkpoint:                      e.checkpoint,
		Stats:                           e.stats,
	}
	e.writer, err = wal.NewWriter(writerCfg)
	if err != nil {
		e.catalog.Close()
		return fmt.Errorf("open WAL writer: %w", err)
	}
	e.checkpoint.SetWriter(e.writer)
	go e.writer.Run()

	e.shutdown = server.NewShutdownManager(server.DefaultShutdownConfig())
	e.shutdown.RegisterCloser(closerFunc(func() error {
		e.writer.Stop()
		e.processor.Close()
		return e.catalog.Close()
	}))

	if e.cfg.HTTP.Addr != "" {
		middleware := httpmw.Default()
		mux := http.NewServeMux()
		mux.Handle("/health", middleware(http.HandlerFunc(e.healthHandler)))
		mux.Handle("/stats", middleware(http.HandlerFunc(e.statsHandler)))
		e.healthSrv = &http.Server{Addr: e.cfg.HTTP.Addr, Handler: mux}
		e.shutdown.RegisterCloser(closerFunc(func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return e.healthSrv.Shutdown(shutdownCtx)
		}))
		go func() {
			if err := e.healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("engine: health server error: %v", err)
			}
		}()
		log.Printf("engine: health/stats HTTP server listening on %s", e.cfg.HTTP.Addr)
	}

	log.Printf("engine: started, next_txn_id=%d system_max_commit_ts=%d",
		result.NextTxnID, result.SystemMaxCommitTS)
	return nil
}

// Stop drains the writer, stops the background processor, and closes
// the catalog.
func (e *Engine) Stop(ctx context.Context) error {
	if e.shutdown == nil {
		return nil
	}
	return e.shutdown.Shutdown(ctx, "engine stop requested")
}

// WaitForShutdown blocks until SIGTERM/SIGINT or ctx cancellation
// triggers a graceful shutdown of every registered resource.
func (e *Engine) WaitForShutdown(ctx context.Context) error {
	return e.shutdown.ListenForSignals(ctx)
}

// TxnManager returns the transaction identity and commit timestamp
// collaborator.
func (e *Engine) TxnManager() *txn.Manager { return e.txnMgr }

// Writer returns the group-commit WAL writer.
func (e *Engine) Writer() *wal.Writer { return e.writer }

// Checkpoint returns the checkpoint coordinator.
func (e *Engine) Checkpoint() *wal.Coordinator { return e.checkpoint }

// Catalog returns the catalog collaborator.
func (e *Engine) Catalog() *catalog.SQLiteCatalog { return e.catalog }

// IndexReaderCache returns the full-text index reader cache.
func (e *Engine) IndexReaderCache() *ftindex.TableIndexReaderCache { return e.indexCache }

// BufferManager returns the resident column-entry cache.
func (e *Engine) BufferManager() *bufmgr.Manager { return e.bufmgr }

// Stats returns the engine's observability counters.
func (e *Engine) Stats() *observability.EngineStats { return e.stats }

func (e *Engine) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","last_checkpoint_ts":%d}`, e.checkpoint.LastCheckpointTS())
}

func (e *Engine) statsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "[")
	for i, c := range e.stats.Snapshot() {
		if i > 0 {
			fmt.Fprint(w, ",")
		}
		fmt.Fprintf(w, `{"name":%q,"total":%d}`, c.Name, c.Total)
	}
	fmt.Fprint(w, "]")
}

func translateFlushOption(f config.FlushOption) wal.FlushOption {
	switch f {
	case config.FlushOnlyWrite:
		return wal.OnlyWrite
	case config.FlushPerSecond:
		return wal.FlushPerSecond
	default:
		return wal.FlushAtOnce
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
