package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"teleportals.ai/internal/persistence/linkdoc"
	persistlog "teleportals.ai/internal/persistence/log"
	"teleportals.ai/internal/sim/multiworld"
	"teleportals.ai/internal/sim/runtime"
	"teleportals.ai/internal/sim/tuning"
	"teleportals.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		worldsPath = flag.String("worlds", "", "path to worlds.yaml (default: <configs>/worlds.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index (audit log and links document are unaffected)")
		watch      = flag.Bool("watch", true, "reload tuning.yaml when it changes")
		seed       = flag.Int64("seed", 0, "hub selection seed (0: time based)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)
	newLogger := func(component string) *log.Logger {
		return log.New(os.Stdout, "["+component+"] ", log.LstdFlags|log.Lmicroseconds)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	wp := strings.TrimSpace(*worldsPath)
	if wp == "" {
		wp = filepath.Join(*configDir, "worlds.yaml")
	}
	mcfg, err := multiworld.Load(wp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load worlds config: %v", err)
		}
		logger.Printf("worlds config not found (%s); using defaults", wp)
		mcfg, _ = multiworld.Load("")
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	// Optional read-model index; the links document stays authoritative.
	idx, err := openRuntimeIndex(*dataDir, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("index backend: upsert tuning: %v", err)
		}
	}

	auditLog := persistlog.NewAuditLogger(*dataDir)
	defer auditLog.Close()

	gw := linkdoc.New(linkdoc.Config{
		Path:          filepath.Join(*dataDir, "data.yml"),
		BackupDir:     filepath.Join(*dataDir, "backups"),
		BackupKeep:    tune.BackupKeep,
		DefaultFacing: tune.PortalConfig().DefaultFacing,
	}, newLogger("linkdoc"))

	opts := runtime.Options{
		Tuning:            tune,
		Worlds:            mcfg,
		Gateway:           gw,
		WorldSnapshotPath: filepath.Join(*dataDir, "world.snap.zst"),
		Audit:             auditLog,
		Logger:            newLogger("runtime"),
	}
	if idx != nil {
		opts.Index = idx
	}
	if *seed != 0 {
		opts.Rand = newRand(*seed)
	}
	rt := runtime.New(opts)

	rep, err := rt.Boot()
	if err != nil {
		logger.Fatalf("boot: %v", err)
	}
	logBoot(logger, gw.Path(), rep)

	ctx, cancel := signalContext()
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := rt.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	reload := func(ctx context.Context) error {
		next, err := tuning.Load(tp)
		if err != nil {
			return err
		}
		if err := rt.Reload(ctx, next); err != nil {
			return err
		}
		logger.Printf("tuning reloaded from %s", tp)
		return nil
	}
	if *watch {
		g.Go(func() error {
			return watchTuning(gctx, tp, reload, logger)
		})
	}

	wsSrv := ws.NewServer(rt, ws.Options{
		AdminFromAnywhere: envBool("TP_WS_ADMIN_ANYWHERE", false),
	}, newLogger("ws"))
	srv := &http.Server{
		Addr:              *addr,
		Handler:           buildMux(rt, wsSrv, idx, reload),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		<-gctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		return srv.Shutdown(ctx2)
	})
	g.Go(func() error {
		logger.Printf("listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Printf("stopped: %v", err)
	}
	<-rt.Done()
	logger.Printf("shutdown complete at tick %d", rt.Tick())
}

func logBoot(logger *log.Logger, docPath string, rep runtime.BootReport) {
	size := "missing"
	if fi, err := os.Stat(docPath); err == nil {
		size = humanize.Bytes(uint64(fi.Size()))
	}
	lr := rep.Load
	logger.Printf("links loaded from %s (%s): groups=%d endpoints=%d parked=%d skipped=%d duplicates=%d",
		docPath, size, lr.Groups, lr.Endpoints, lr.Parked, len(lr.Skipped), lr.Duplicates)
	if lr.FromBackup != "" {
		logger.Printf("links document was unreadable; restored from backup %s", lr.FromBackup)
	}
	if rep.WorldRestored {
		logger.Printf("blocks restored; reconcile dropped=%d pruned=%d", len(rep.Reconcile.Dropped), rep.Reconcile.Pruned)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
