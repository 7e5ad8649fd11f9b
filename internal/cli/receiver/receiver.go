package receiver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sheerbytes/streamplan/internal/cli"
	"github.com/sheerbytes/streamplan/internal/config"
	"github.com/sheerbytes/streamplan/internal/eventfeed"
	"github.com/sheerbytes/streamplan/internal/logging"
	"github.com/sheerbytes/streamplan/internal/peerstream"
	"github.com/sheerbytes/streamplan/internal/progress"
	"github.com/sheerbytes/streamplan/internal/quictransport"
	"github.com/sheerbytes/streamplan/internal/streaming"
	"github.com/sheerbytes/streamplan/internal/termio"
)

// Run executes the receive command. It serves until interrupted.
func Run(args []string) {
	if cli.HasHelpFlag(args) {
		printReceiverUsage()
		return
	}
	cfg, err := config.ParseReceiveConfig(args)
	if err != nil {
		fmt.Fprintln(termio.Stderr(), err)
		printReceiverUsage()
		termio.Flush()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.New("streamplan", cfg.LogLevel, cfg.LogFormat)
	err = run(ctx, cfg, termio.Stdout(), logger)
	termio.Flush()
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, stdout io.Writer, logger *slog.Logger) error {
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		logger.Error("failed to create output directory", "dir", cfg.OutDir, "error", err)
		return err
	}

	var listeners []streaming.Listener
	if !cfg.Quiet {
		listeners = append(listeners, progress.NewReporter(stdout, cfg.ProgressInterval))
	}
	if cfg.EventsAddr != "" {
		feed := eventfeed.New(logger)
		shutdown := cli.StartFeed(cfg.EventsAddr, feed, logger)
		defer shutdown()
		listeners = append(listeners, feed)
	}

	listener, err := quictransport.Listen(cfg.Listen, logger)
	if err != nil {
		logger.Error("failed to listen", "addr", cfg.Listen, "error", err)
		return err
	}
	defer listener.Close()

	r := &peerstream.Receiver{
		Manager:          streaming.NewManager(logger),
		OutDir:           cfg.OutDir,
		Logger:           logger,
		Listeners:        listeners,
		ChunkSize:        cfg.ChunkSize,
		ProgressInterval: cfg.ProgressInterval,
	}
	fmt.Fprintf(stdout, "receiving on %s into %s\n", listener.Addr(), cfg.OutDir)
	if err := r.Serve(ctx, listener); err != nil {
		logger.Error("receiver stopped", "error", err)
		return err
	}
	return nil
}

func printReceiverUsage() {
	w := termio.Stderr()
	fmt.Fprintln(w, "usage: streamplan receive [flags]")
	fmt.Fprintln(w, "flags:")
	fmt.Fprintln(w, "  -listen addr            UDP address to accept sessions on (default :7443)")
	fmt.Fprintln(w, "  -out dir                directory received plans are written under")
	fmt.Fprintln(w, "  -events-addr addr       serve the websocket event feed on addr")
	fmt.Fprintln(w, "  -chunk-size bytes       read/write chunk size")
	fmt.Fprintln(w, "  -progress-interval d    minimum spacing of progress reports")
	fmt.Fprintln(w, "  -config file            YAML config file")
	fmt.Fprintln(w, "  -quiet                  do not print progress")
}
