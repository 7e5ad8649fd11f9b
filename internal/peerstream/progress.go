package peerstream

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/sheerbytes/streamplan/internal/streaming"
)

// DefaultProgressInterval is the minimum spacing of intermediate progress
// reports for one file.
const DefaultProgressInterval = 250 * time.Millisecond

// fileProgress reports the position of one file to its session, dropping
// intermediate reports that come faster than the configured interval. The
// final position is always reported.
type fileProgress struct {
	session *streaming.Session
	name    string
	dir     streaming.Direction
	total   int64
	limiter *rate.Limiter
}

func newFileProgress(session *streaming.Session, name string, dir streaming.Direction, total int64, interval time.Duration) *fileProgress {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &fileProgress{
		session: session,
		name:    name,
		dir:     dir,
		total:   total,
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (p *fileProgress) update(current int64) error {
	if current < p.total && !p.limiter.Allow() {
		return nil
	}
	return p.session.Progress(p.name, p.dir, current, p.total)
}
