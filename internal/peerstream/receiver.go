package peerstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/sheerbytes/streamplan/internal/streaming"
	"github.com/sheerbytes/streamplan/pkg/protocol"
)

// closeGrace is how long the receiver waits for the initiator to hang up
// after the last control message before closing the connection itself.
const closeGrace = 5 * time.Second

// Receiver accepts sessions initiated by peers and stores the streamed files
// under OutDir/<plan id>/.
type Receiver struct {
	Manager          *streaming.Manager
	OutDir           string
	Logger           *slog.Logger
	Listeners        []streaming.Listener // attached to every plan this node joins
	ChunkSize        int
	ProgressInterval time.Duration

	poolOnce sync.Once
	pool     *chunkPool
}

// Serve accepts connections on listener until ctx is cancelled or the
// listener fails. Each connection carries one session.
func (r *Receiver) Serve(ctx context.Context, listener *quic.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.handleConn(ctx, conn)
		}()
	}
}

func (r *Receiver) handleConn(ctx context.Context, conn *quic.Conn) {
	logger := r.logger().With("remote_addr", conn.RemoteAddr().String())
	defer conn.CloseWithError(0, "")

	ctrl, err := conn.AcceptStream(ctx)
	if err != nil {
		logger.Warn("no control stream", "error", err)
		return
	}
	defer func() {
		ctrl.Close()
		select {
		case <-conn.Context().Done():
		case <-time.After(closeGrace):
		case <-ctx.Done():
		}
	}()

	var init protocol.StreamInit
	if _, err := protocol.ReadMessage(ctrl, protocol.TypeStreamInit, &init); err != nil {
		logger.Warn("bad stream init", "error", err)
		writeError(ctrl, "", protocol.CodeBadRequest, err)
		return
	}
	planID, err := streaming.ParsePlanID(init.PlanID)
	if err != nil {
		writeError(ctrl, init.PlanID, protocol.CodeBadRequest, err)
		return
	}
	from := init.From
	if from == "" {
		from = conn.RemoteAddr().String()
	}
	logger = logger.With("plan_id", init.PlanID, "peer", from)

	_, session, err := r.Manager.InitReceivingSide(init.SessionIndex, planID, init.Description, from, r.Listeners)
	if err != nil {
		logger.Error("rejecting session", "error", err)
		writeError(ctrl, init.PlanID, protocol.CodeRejected, err)
		return
	}

	if err := r.receive(ctx, conn, ctrl, session, init); err != nil {
		logger.Warn("session failed", "error", err)
		writeError(ctrl, init.PlanID, protocol.CodeTransferFail, err)
		if ferr := session.Fail(err); ferr != nil {
			logger.Error("reporting session failure", "error", ferr)
		}
		return
	}
	if err := session.Complete(); err != nil {
		logger.Error("reporting session completion", "error", err)
	}
}

func (r *Receiver) receive(ctx context.Context, conn *quic.Conn, ctrl io.ReadWriter, session *streaming.Session, init protocol.StreamInit) error {
	if err := session.Prepare(streaming.StreamSummary{Files: init.Files, TotalSize: init.TotalBytes}, streaming.StreamSummary{}); err != nil {
		return err
	}
	if err := protocol.WriteMessage(ctrl, protocol.TypeStreamAccept, init.PlanID, protocol.StreamAccept{PlanID: init.PlanID}); err != nil {
		return err
	}

	dir := filepath.Join(r.OutDir, init.PlanID)
	var files int
	var bytes int64
	for files < init.Files {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return fmt.Errorf("accept file stream: %w", err)
		}
		n, err := r.receiveFile(stream, session, dir)
		stream.Close()
		if err != nil {
			return err
		}
		files++
		bytes += n
	}

	var done protocol.StreamComplete
	if _, err := protocol.ReadMessage(ctrl, protocol.TypeStreamComplete, &done); err != nil {
		return fmt.Errorf("waiting for stream complete: %w", err)
	}
	if done.Files != files || done.TotalBytes != bytes {
		return fmt.Errorf("received %d files (%d bytes), peer sent %d files (%d bytes)",
			files, bytes, done.Files, done.TotalBytes)
	}
	return protocol.WriteMessage(ctrl, protocol.TypeStreamAck, init.PlanID, protocol.StreamAck{Files: files, TotalBytes: bytes})
}

func (r *Receiver) receiveFile(stream io.Reader, session *streaming.Session, dir string) (int64, error) {
	var hdr protocol.FileHeader
	if _, err := protocol.ReadMessage(stream, protocol.TypeFileHeader, &hdr); err != nil {
		return 0, err
	}
	if hdr.Size < 0 {
		return 0, fmt.Errorf("negative size for %s", hdr.Name)
	}
	path, err := localPath(dir, hdr.Name)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	dst, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer dst.Close()

	progress := newFileProgress(session, hdr.Name, streaming.DirectionIn, hdr.Size, r.progressInterval())
	buf := r.chunks().get()
	defer r.chunks().put(buf)

	var got int64
	for got < hdr.Size {
		want := int64(len(*buf))
		if rest := hdr.Size - got; rest < want {
			want = rest
		}
		n, rerr := stream.Read((*buf)[:want])
		if n > 0 {
			if _, err := dst.Write((*buf)[:n]); err != nil {
				return got, err
			}
			got += int64(n)
			if err := progress.update(got); err != nil {
				return got, err
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) && got == hdr.Size {
				break
			}
			return got, fmt.Errorf("%s: %w after %d of %d bytes", hdr.Name, rerr, got, hdr.Size)
		}
	}
	if hdr.Size == 0 {
		if err := progress.update(0); err != nil {
			return 0, err
		}
	}
	return got, dst.Close()
}

func writeError(w io.Writer, planID, code string, err error) {
	_ = protocol.WriteMessage(w, protocol.TypeError, planID, protocol.Error{Code: code, Message: err.Error()})
}

func (r *Receiver) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func (r *Receiver) chunks() *chunkPool {
	r.poolOnce.Do(func() { r.pool = newChunkPool(r.ChunkSize) })
	return r.pool
}

func (r *Receiver) progressInterval() time.Duration {
	if r.ProgressInterval == 0 {
		return DefaultProgressInterval
	}
	return r.ProgressInterval
}
