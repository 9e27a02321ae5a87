package bot

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofrs/flock"

	"voxelcam.ai/internal/config"
	"voxelcam.ai/internal/logging"
	"voxelcam.ai/internal/persistence/history"
	"voxelcam.ai/internal/persistence/journal"
	"voxelcam.ai/internal/sched"
	"voxelcam.ai/internal/status"
	"voxelcam.ai/internal/supervisor"
	"voxelcam.ai/internal/transport/wsclient"
)

var ErrAlreadyRunning = errors.New("another voxelcam instance is already running")

// Paths under DATA_DIR.
func LockPath(dataDir string) string    { return filepath.Join(dataDir, "voxelcam.lock") }
func JournalDir(dataDir string) string  { return filepath.Join(dataDir, "journal") }
func HistoryPath(dataDir string) string { return filepath.Join(dataDir, "history.sqlite") }

// AcquireLock takes the single-instance lock in dataDir.
func AcquireLock(dataDir string) (*flock.Flock, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	lock := flock.New(LockPath(dataDir))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}
	return lock, nil
}

// Run starts the bot and blocks until ctx is done (nil) or the supervisor
// gives up.
func Run(ctx context.Context, cfg config.Config, logger *log.Logger) error {
	if logger == nil {
		logger = log.Default()
	}
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		return err
	}

	lock, err := AcquireLock(cfg.DataDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release lock", "err", err)
		}
	}()

	jw := journal.NewWriter(JournalDir(cfg.DataDir), nil)
	defer jw.Close()

	hist, err := history.Open(HistoryPath(cfg.DataDir))
	if err != nil {
		logger.Warn("history disabled", "err", err)
		hist = nil
	} else {
		defer hist.Close()
		closeDangling(ctx, hist, JournalDir(cfg.DataDir), logger)
	}

	board := status.NewBoard(cfg.StatusFile, nil, logging.Component(logger, "status"))

	if cfg.HTTPAddr != "" {
		stop, err := serveStatus(ctx, cfg.HTTPAddr, board, logging.Component(logger, "http"))
		if err != nil {
			return err
		}
		defer stop()
	}

	s := sched.New(time.Now)
	rt := NewRuntime(opts, Deps{
		Sched:   s,
		Status:  board,
		Journal: jw,
		History: hist,
		Logger:  logging.Component(logger, "camera"),
	})
	dialer := wsclient.NewDialer(wsclient.Config{
		URL:         cfg.ServerURL,
		Name:        cfg.Username,
		ChunkRadius: cfg.ChunkRadius,
	}, logging.Component(logger, "ws"))
	sup := supervisor.New(supervisor.Options{
		Backoff:     cfg.ReconnectBackoff,
		MaxFailures: cfg.MaxConnectFailures,
	}, dialer, s, rt, logging.Component(logger, "supervisor"))

	logger.Info("voxelcam starting", "user", cfg.Username, "server", cfg.ServerURL, "mode", cfg.CameraMode, "profile", cfg.CameraProfile)
	err = sup.Run(ctx)
	st := sup.Stats()
	logger.Info("voxelcam stopped", "attempts", st.Attempts, "sessions", st.Established, "failures", st.Failures)
	return err
}

// closeDangling ends history rows left open by a previous run that did not
// shut down cleanly, using the journal for the last known time of each
// session. Only the lock holder may do this.
func closeDangling(ctx context.Context, hist *history.Store, journalDir string, logger *log.Logger) {
	seen, err := journal.LastSeen(journalDir)
	if err != nil {
		logger.Warn("journal unreadable, closing open history rows at their last switch", "err", err)
	}
	n, err := hist.CloseDangling(ctx, seen)
	if err != nil {
		logger.Warn("failed to close history left open by a previous run", "err", err)
		return
	}
	if n > 0 {
		logger.Warn("closed sessions left open by a previous run", "count", n)
	}
}

func serveStatus(ctx context.Context, addr string, board *status.Board, logger *log.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("status listener: %w", err)
	}
	srv := &http.Server{
		Handler:           board.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Info("status endpoint listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error("status endpoint failed", "err", err)
		}
	}()
	return func() {
		ctx2, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx2)
		<-done
	}, nil
}
