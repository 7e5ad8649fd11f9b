package watcher

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/sheerbytes/streamplan/internal/cli"
	"github.com/sheerbytes/streamplan/internal/eventfeed"
	"github.com/sheerbytes/streamplan/internal/logging"
	"github.com/sheerbytes/streamplan/internal/termio"
	"github.com/sheerbytes/streamplan/pkg/protocol"
)

// Run executes the watch command: it prints the events of a remote feed.
func Run(args []string) {
	if cli.HasHelpFlag(args) {
		printWatcherUsage()
		return
	}
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	addr := fs.String("addr", "127.0.0.1:7480", "host:port of the event feed")
	planID := fs.String("plan", "", "only show events of this plan")
	logLevel := fs.String("log-level", "warn", "log level")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(termio.Stderr(), err)
		printWatcherUsage()
		termio.Flush()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.New("streamplan", *logLevel, "text")
	err := run(ctx, feedURL(*addr, *planID), termio.Stdout(), logger)
	termio.Flush()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func feedURL(addr, planID string) string {
	u := url.URL{Scheme: "ws", Host: addr, Path: cli.EventsPath}
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		if parsed, err := url.Parse(addr); err == nil {
			u = *parsed
		}
	}
	if planID != "" {
		q := u.Query()
		q.Set("plan_id", planID)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

var errPlanFailed = errors.New("plan failed")

// errPlanDone stops the watch once the filtered plan completed.
var errPlanDone = errors.New("plan done")

// run prints events until the watched plan completes, ctx is cancelled or
// the feed goes away. Without a plan filter it runs until interrupted.
func run(ctx context.Context, wsURL string, out io.Writer, logger *slog.Logger) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	filtered := strings.Contains(wsURL, "plan_id=")

	err := eventfeed.Watch(ctx, wsURL, logger, func(env protocol.Envelope) {
		line, ok := render(env)
		if !ok {
			logger.Warn("undecodable event", "type", env.Type)
			return
		}
		fmt.Fprintln(out, line)
		if filtered && env.Type == protocol.TypeEventPlanComplete {
			var p protocol.EventPlanComplete
			if env.DecodePayload(&p) == nil && !p.Success {
				cancel(errPlanFailed)
				return
			}
			cancel(errPlanDone)
		}
	})
	if err != nil {
		return err
	}
	if cause := context.Cause(ctx); errors.Is(cause, errPlanFailed) {
		return cause
	}
	return nil
}

func render(env protocol.Envelope) (string, bool) {
	id := env.PlanID
	if len(id) > 8 {
		id = id[:8]
	}
	switch env.Type {
	case protocol.TypeEventPrepared:
		var p protocol.EventPrepared
		if env.DecodePayload(&p) != nil {
			return "", false
		}
		s := p.Session
		return fmt.Sprintf("[%s] %s prepared: receive %d files (%s), send %d files (%s)", id, s.Peer,
			s.ReceivingFiles, humanize.IBytes(uint64(s.ReceivingBytes)),
			s.SendingFiles, humanize.IBytes(uint64(s.SendingBytes))), true
	case protocol.TypeEventProgress:
		var p protocol.EventProgress
		if env.DecodePayload(&p) != nil {
			return "", false
		}
		return fmt.Sprintf("[%s] %s %s %s %s/%s", id, p.Peer, p.Direction, p.FileName,
			humanize.IBytes(uint64(p.CurrentBytes)), humanize.IBytes(uint64(p.TotalBytes))), true
	case protocol.TypeEventSessionComplete:
		var p protocol.EventSessionComplete
		if env.DecodePayload(&p) != nil {
			return "", false
		}
		if p.Success {
			return fmt.Sprintf("[%s] %s complete", id, p.Session.Peer), true
		}
		return fmt.Sprintf("[%s] %s failed: %s", id, p.Session.Peer, p.Session.FailureReason), true
	case protocol.TypeEventPlanComplete:
		var p protocol.EventPlanComplete
		if env.DecodePayload(&p) != nil {
			return "", false
		}
		if p.Success {
			return fmt.Sprintf("[%s] %s complete (%d sessions)", id, p.Description, len(p.Sessions)), true
		}
		return fmt.Sprintf("[%s] %s failed: %s", id, p.Description, p.Error), true
	default:
		return "", false
	}
}

func printWatcherUsage() {
	w := termio.Stderr()
	fmt.Fprintln(w, "usage: streamplan watch [flags]")
	fmt.Fprintln(w, "flags:")
	fmt.Fprintln(w, "  -addr host:port     event feed of a send or receive node (or a ws:// url)")
	fmt.Fprintln(w, "  -plan id            exit once this plan completes")
}
