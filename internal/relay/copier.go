package relay

import (
	"context"
	"errors"
	"io"
)

// Outcome is how a single copy direction ended
type Outcome int

const (
	// NormalEOF means the source finished cleanly
	NormalEOF Outcome = iota
	// Cancelled means the context was done
	Cancelled
	// Failed means a read or write error
	Failed
)

// String returns the string representation of an Outcome
func (o Outcome) String() string {
	switch o {
	case NormalEOF:
		return "eof"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// CopyResult reports one finished direction
type CopyResult struct {
	Outcome Outcome
	Bytes   int64
	Err     error
}

// Copy forwards bytes from src to dst until EOF, cancellation or error.
// Each non-empty read is written with a single Write, so a message-oriented
// dst sees one message per read. A zero-length read counts as EOF.
// Copy never closes src or dst.
func Copy(ctx context.Context, dst io.Writer, src io.Reader, buf []byte) CopyResult {
	var written int64
	for {
		if ctx.Err() != nil {
			return CopyResult{Outcome: Cancelled, Bytes: written, Err: ctx.Err()}
		}

		n, rerr := src.Read(buf)
		if n > 0 {
			wn, werr := dst.Write(buf[:n])
			written += int64(wn)
			if werr == nil && wn != n {
				werr = io.ErrShortWrite
			}
			if werr != nil {
				return finish(ctx, written, werr)
			}
		}

		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return CopyResult{Outcome: NormalEOF, Bytes: written}
			}
			return finish(ctx, written, rerr)
		}
		if n == 0 {
			return CopyResult{Outcome: NormalEOF, Bytes: written}
		}
	}
}

func finish(ctx context.Context, written int64, err error) CopyResult {
	if ctx.Err() != nil {
		return CopyResult{Outcome: Cancelled, Bytes: written, Err: ctx.Err()}
	}
	return CopyResult{Outcome: Failed, Bytes: written, Err: err}
}
