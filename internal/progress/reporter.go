package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sheerbytes/streamplan/internal/streaming"
)

// Reporter is a streaming.Listener that prints a plan's lifecycle to a
// terminal or log file. Progress lines are printed at most once per Interval.
type Reporter struct {
	Interval time.Duration

	mu       sync.Mutex
	out      io.Writer
	meter    *Meter
	now      func() time.Time
	lastLine time.Time
}

// NewReporter returns a reporter writing to out.
func NewReporter(out io.Writer, interval time.Duration) *Reporter {
	return newReporterWithNow(out, interval, time.Now)
}

func newReporterWithNow(out io.Writer, interval time.Duration, now func() time.Time) *Reporter {
	return &Reporter{
		Interval: interval,
		out:      out,
		meter:    NewMeterWithNow(now),
		now:      now,
	}
}

// HandleStreamEvent implements streaming.Listener.
func (r *Reporter) HandleStreamEvent(ev streaming.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch e := ev.(type) {
	case *streaming.PreparedEvent:
		s := e.Session
		r.meter.AddTotal(s.TotalSizeToSend() + s.TotalSizeToReceive())
		fmt.Fprintf(r.out, "[%s] prepared session with %s: sending %d files (%s), receiving %d files (%s)\n",
			short(e.PlanID), s.Peer,
			s.SendingSummary.Files, humanize.IBytes(uint64(s.TotalSizeToSend())),
			s.ReceivingSummary.Files, humanize.IBytes(uint64(s.TotalSizeToReceive())))

	case *streaming.ProgressEvent:
		p := e.Progress
		r.meter.Observe(p.Peer+"/"+p.Direction.String()+"/"+p.FileName, p.CurrentBytes)
		now := r.now()
		if now.Sub(r.lastLine) < r.Interval && !p.IsCompleted() {
			return
		}
		r.lastLine = now
		stats := r.meter.Snapshot()
		fmt.Fprintf(r.out, "[%s] %s / %s (%.1f%%) at %s/s, eta %s\n",
			short(e.PlanID),
			humanize.IBytes(uint64(stats.BytesDone)), humanize.IBytes(uint64(stats.Total)),
			stats.Percent, humanize.IBytes(uint64(stats.RateBps)), stats.ETA.Round(time.Second))

	case *streaming.SessionCompleteEvent:
		if e.Success() {
			fmt.Fprintf(r.out, "[%s] session with %s complete\n", short(e.PlanID), e.Session.Peer)
		} else {
			fmt.Fprintf(r.out, "[%s] session with %s failed: %v\n", short(e.PlanID), e.Session.Peer, e.Err)
		}

	case *streaming.PlanCompleteEvent:
		st := e.State
		elapsed := r.now().Sub(r.meter.Snapshot().StartedAt).Round(time.Millisecond)
		if e.Err != nil {
			fmt.Fprintf(r.out, "[%s] stream failed after %s: %d of %d sessions failed (%v)\n",
				short(st.PlanID), elapsed, len(st.FailedPeers()), len(st.Sessions), st.FailedPeers())
			return
		}
		fmt.Fprintf(r.out, "[%s] all %d sessions completed in %s: sent %s, received %s\n",
			short(st.PlanID), len(st.Sessions), elapsed,
			humanize.IBytes(uint64(st.TotalBytesSent())), humanize.IBytes(uint64(st.TotalBytesReceived())))
	}
}

// short renders the first block of a plan id, enough to tell plans apart in
// a terminal.
func short(id streaming.PlanID) string {
	return id.String()[:8]
}
