package sender

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/sheerbytes/streamplan/internal/cli"
	"github.com/sheerbytes/streamplan/internal/config"
	"github.com/sheerbytes/streamplan/internal/eventfeed"
	"github.com/sheerbytes/streamplan/internal/logging"
	"github.com/sheerbytes/streamplan/internal/peerstream"
	"github.com/sheerbytes/streamplan/internal/progress"
	"github.com/sheerbytes/streamplan/internal/streaming"
	"github.com/sheerbytes/streamplan/internal/termio"
)

// Run executes the send command and exits the process on failure.
func Run(args []string) {
	if cli.HasHelpFlag(args) {
		printSenderUsage()
		return
	}
	cfg, err := config.ParseSendConfig(args)
	if err != nil {
		fmt.Fprintln(termio.Stderr(), err)
		printSenderUsage()
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
	files, err := peerstream.CollectFiles(cfg.Paths)
	if err != nil {
		logger.Error("failed to collect files", "error", err)
		return err
	}
	if len(cfg.Peers) == 0 {
		logger.Warn("no peers given, the plan completes without streaming anything")
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

	s := &peerstream.Sender{
		Manager:          streaming.NewManager(logger),
		Logger:           logger,
		NodeID:           cfg.NodeID,
		ChunkSize:        cfg.ChunkSize,
		ProgressInterval: cfg.ProgressInterval,
		DialTimeout:      cfg.DialTimeout,
	}
	fmt.Fprintf(stdout, "streaming %d files (%s) to %d peers\n",
		len(files), humanize.IBytes(uint64(peerstream.TotalSize(files))), len(cfg.Peers))

	future, err := s.Start(ctx, peerstream.Plan{
		Description: cfg.Description,
		Peers:       cfg.Peers,
		Files:       files,
		Listeners:   listeners,
	})
	if err != nil {
		logger.Error("failed to start plan", "error", err)
		return err
	}

	state, err := future.Wait(ctx)
	if err != nil {
		var streamErr *streaming.StreamError
		if errors.As(err, &streamErr) {
			logger.Error("streaming plan failed", "plan_id", future.PlanID.String(), "failed_peers", streamErr.State.FailedPeers())
			return err
		}
		// Interrupted: sessions observe the same ctx and fail on their own.
		logger.Warn("interrupted", "plan_id", future.PlanID.String(), "error", err)
		return err
	}
	logger.Info("streaming plan complete", "plan_id", state.PlanID.String(), "bytes_sent", state.TotalBytesSent())
	return nil
}

func printSenderUsage() {
	w := termio.Stderr()
	fmt.Fprintln(w, "usage: streamplan send [flags] <path> [<path>...]")
	fmt.Fprintln(w, "flags:")
	fmt.Fprintln(w, "  -peer host:port         receiving peer (repeatable)")
	fmt.Fprintln(w, "  -path path              file or directory to stream (repeatable)")
	fmt.Fprintln(w, "  -description text      plan description")
	fmt.Fprintln(w, "  -events-addr addr       serve the websocket event feed on addr")
	fmt.Fprintln(w, "  -chunk-size bytes       read/write chunk size")
	fmt.Fprintln(w, "  -progress-interval d    minimum spacing of progress reports")
	fmt.Fprintln(w, "  -dial-timeout d         timeout for connecting to a peer")
	fmt.Fprintln(w, "  -config file            YAML config file")
	fmt.Fprintln(w, "  -quiet                  do not print progress")
	fmt.Fprintln(w, "environment: STREAMPLAN_PEERS, STREAMPLAN_NODE_ID, STREAMPLAN_LOG_LEVEL, ...")
}
