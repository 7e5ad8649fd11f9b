package peerstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/sheerbytes/streamplan/internal/quictransport"
	"github.com/sheerbytes/streamplan/internal/streaming"
	"github.com/sheerbytes/streamplan/pkg/protocol"
)

// Sender streams a set of local files to every peer of a plan, one session
// per peer.
type Sender struct {
	Manager          *streaming.Manager
	Logger           *slog.Logger
	NodeID           string // announced to peers as the session's origin
	ChunkSize        int
	ProgressInterval time.Duration
	DialTimeout      time.Duration

	poolOnce sync.Once
	pool     *chunkPool
}

// Plan describes one outgoing streaming plan.
type Plan struct {
	ID          streaming.PlanID
	Description string
	Peers       []string
	Files       []File
	Listeners   []streaming.Listener
}

// Start registers the plan and starts one session per peer. The returned
// future resolves once every session has finished; sessions stop early when
// ctx is cancelled.
func (s *Sender) Start(ctx context.Context, plan Plan) (*streaming.ResultFuture, error) {
	logger := s.logger()
	if plan.ID == (streaming.PlanID{}) {
		plan.ID = streaming.NewPlanID()
	}
	total := TotalSize(plan.Files)

	coordinator := streaming.NewCoordinator(false)
	for i, peer := range plan.Peers {
		info := streaming.NewSessionInfo(peer, i, streaming.StreamSummary{}, streaming.StreamSummary{Files: len(plan.Files), TotalSize: total})
		if err := coordinator.RegisterPeer(peer, info); err != nil {
			return nil, err
		}
	}

	future, err := s.Manager.Init(plan.ID, plan.Description, plan.Listeners, coordinator)
	if err != nil {
		return nil, err
	}

	for _, peer := range plan.Peers {
		session, err := streaming.OpenSession(future, peer)
		if err != nil {
			return nil, err
		}
		go s.runSession(ctx, future, session, plan.Files)
	}
	logger.Info("streaming plan started", "plan_id", plan.ID.String(), "peers", len(plan.Peers),
		"files", len(plan.Files), "bytes", total)
	return future, nil
}

func (s *Sender) runSession(ctx context.Context, future *streaming.ResultFuture, session *streaming.Session, files []File) {
	logger := s.logger().With("plan_id", future.PlanID.String(), "peer", session.Peer)

	err := s.stream(ctx, logger, future, session, files)
	if err != nil {
		logger.Warn("session failed", "error", err)
		if ferr := session.Fail(err); ferr != nil {
			logger.Error("reporting session failure", "error", ferr)
		}
		return
	}
	if err := session.Complete(); err != nil {
		logger.Error("reporting session completion", "error", err)
	}
}

func (s *Sender) stream(ctx context.Context, logger *slog.Logger, future *streaming.ResultFuture, session *streaming.Session, files []File) error {
	dialCtx, cancel := context.WithTimeout(ctx, s.dialTimeout())
	conn, err := quictransport.Dial(dialCtx, session.Peer, logger)
	cancel()
	if err != nil {
		return err
	}
	defer conn.CloseWithError(0, "")
	stop := context.AfterFunc(ctx, func() {
		conn.CloseWithError(1, "cancelled")
	})
	defer stop()

	planID := future.PlanID.String()
	total := TotalSize(files)

	ctrl, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return fmt.Errorf("open control stream: %w", err)
	}
	defer ctrl.Close()

	init := protocol.StreamInit{
		PlanID:       planID,
		Description:  future.Description,
		SessionIndex: session.Index,
		From:         s.NodeID,
		Files:        len(files),
		TotalBytes:   total,
	}
	if err := protocol.WriteMessage(ctrl, protocol.TypeStreamInit, planID, init); err != nil {
		return err
	}
	var accept protocol.StreamAccept
	if _, err := protocol.ReadMessage(ctrl, protocol.TypeStreamAccept, &accept); err != nil {
		return fmt.Errorf("waiting for stream accept: %w", err)
	}
	if err := session.Prepare(streaming.StreamSummary{}, streaming.StreamSummary{Files: len(files), TotalSize: total}); err != nil {
		return err
	}

	for _, f := range files {
		if err := s.sendFile(ctx, conn, session, planID, f); err != nil {
			return fmt.Errorf("send %s: %w", f.Name, err)
		}
	}

	done := protocol.StreamComplete{Files: len(files), TotalBytes: total}
	if err := protocol.WriteMessage(ctrl, protocol.TypeStreamComplete, planID, done); err != nil {
		return err
	}
	var ack protocol.StreamAck
	if _, err := protocol.ReadMessage(ctrl, protocol.TypeStreamAck, &ack); err != nil {
		return fmt.Errorf("waiting for stream ack: %w", err)
	}
	if ack.Files != done.Files || ack.TotalBytes != done.TotalBytes {
		return fmt.Errorf("peer stored %d files (%d bytes), sent %d files (%d bytes)",
			ack.Files, ack.TotalBytes, done.Files, done.TotalBytes)
	}
	return nil
}

func (s *Sender) sendFile(ctx context.Context, conn *quic.Conn, session *streaming.Session, planID string, f File) error {
	src, err := os.Open(f.Path)
	if err != nil {
		return err
	}
	defer src.Close()

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer stream.Close()

	if err := protocol.WriteMessage(stream, protocol.TypeFileHeader, planID, protocol.FileHeader{Name: f.Name, Size: f.Size}); err != nil {
		return err
	}

	progress := newFileProgress(session, f.Name, streaming.DirectionOut, f.Size, s.progressInterval())
	buf := s.chunks().get()
	defer s.chunks().put(buf)

	var sent int64
	for sent < f.Size {
		want := int64(len(*buf))
		if rest := f.Size - sent; rest < want {
			want = rest
		}
		n, rerr := src.Read((*buf)[:want])
		if n > 0 {
			if _, err := stream.Write((*buf)[:n]); err != nil {
				return fmt.Errorf("write: %w", err)
			}
			sent += int64(n)
			if err := progress.update(sent); err != nil {
				return err
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return rerr
		}
	}
	if sent != f.Size {
		return fmt.Errorf("file shrank to %d bytes, announced %d", sent, f.Size)
	}
	if f.Size == 0 {
		return progress.update(0)
	}
	return nil
}

func (s *Sender) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Sender) chunks() *chunkPool {
	s.poolOnce.Do(func() { s.pool = newChunkPool(s.ChunkSize) })
	return s.pool
}

func (s *Sender) progressInterval() time.Duration {
	if s.ProgressInterval == 0 {
		return DefaultProgressInterval
	}
	return s.ProgressInterval
}

func (s *Sender) dialTimeout() time.Duration {
	if s.DialTimeout <= 0 {
		return 10 * time.Second
	}
	return s.DialTimeout
}
