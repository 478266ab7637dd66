// Package buildlog reads a remote build log that may still be growing.
//
// The Reader is stateless across calls: the caller owns the LogCursor and
// hands it back on every poll. A cursor only advances when a chunk fetch
// succeeds; failed, cancelled or timed out fetches leave it untouched.
package buildlog

import (
	"context"
	"fmt"

	"github.com/foundry/artifactview/internal/core/models"
	"github.com/foundry/artifactview/internal/core/services"
)

// DefaultChunkSize matches the backend's preferred read size.
const DefaultChunkSize int64 = 64 * 1024

var (
	// ErrUnknownProject is returned when the project of a build target does not exist.
	ErrUnknownProject = fmt.Errorf("unknown project: %w", services.ErrNotFound)
	// ErrUnknownTarget is returned when the repository/arch pair is not defined for the project.
	ErrUnknownTarget = fmt.Errorf("unknown repository or architecture: %w", services.ErrNotFound)
)

// State describes what a chunk read found.
type State string

const (
	// StateAbsent means the build has not produced a log yet.
	StateAbsent State = "absent"
	// StateEmpty means a log exists but has no bytes.
	StateEmpty State = "empty"
	// StatePartial means more bytes exist past the returned chunk.
	StatePartial State = "partial"
	// StateComplete means the chunk reaches the current end of the log.
	StateComplete State = "complete"
	// StateNoNewData means the cursor is already at the current end. More may come later.
	StateNoNewData State = "no_new_data"
)

// Chunk is the outcome of one read.
type Chunk struct {
	State      State
	Data       []byte
	Cursor     models.LogCursor
	RemoteSize int64
}

// Reader computes byte ranges against a LogBackend.
type Reader struct {
	backend   services.LogBackend
	chunkSize int64
}

// NewReader returns a Reader fetching at most chunkSize bytes per poll.
func NewReader(backend services.LogBackend, chunkSize int64) *Reader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Reader{backend: backend, chunkSize: chunkSize}
}

// FullPageChunk reads bytes [0, sizeHint) for a synchronous page load.
func (r *Reader) FullPageChunk(ctx context.Context, t models.BuildTarget, sizeHint int64) (Chunk, error) {
	if sizeHint <= 0 {
		sizeHint = r.chunkSize
	}
	if err := r.checkTarget(ctx, t); err != nil {
		return Chunk{}, err
	}

	info, err := r.backend.LogEntryInfo(ctx, t)
	if err != nil {
		return Chunk{}, fmt.Errorf("reading log entry: %w", err)
	}
	if info == nil {
		return Chunk{State: StateAbsent}, nil
	}
	if info.Size <= 0 {
		return Chunk{State: StateEmpty}, nil
	}

	data, err := r.fetch(ctx, t, 0, min(sizeHint, info.Size))
	if err != nil {
		return Chunk{}, err
	}
	return advanced(models.LogCursor{RemoteSize: info.Size}, data), nil
}

// PollNextChunk re-reads the remote size and fetches [cursor.Offset, size),
// capped at the reader's chunk size.
func (r *Reader) PollNextChunk(ctx context.Context, t models.BuildTarget, cursor models.LogCursor) (Chunk, error) {
	if cursor.Offset < 0 {
		return Chunk{}, fmt.Errorf("%w: negative log offset %d", services.ErrValidation, cursor.Offset)
	}
	if err := r.checkTarget(ctx, t); err != nil {
		return Chunk{}, err
	}

	info, err := r.backend.LogEntryInfo(ctx, t)
	if err != nil {
		return Chunk{}, fmt.Errorf("reading log entry: %w", err)
	}
	if info == nil {
		return Chunk{State: StateAbsent, Cursor: cursor}, nil
	}
	if info.Size <= 0 {
		return Chunk{State: StateEmpty, Cursor: cursor}, nil
	}
	if cursor.Offset >= info.Size {
		return Chunk{State: StateNoNewData, Cursor: cursor, RemoteSize: info.Size}, nil
	}

	data, err := r.fetch(ctx, t, cursor.Offset, min(r.chunkSize, info.Size-cursor.Offset))
	if err != nil {
		return Chunk{}, err
	}
	if len(data) == 0 {
		return Chunk{State: StateNoNewData, Cursor: cursor, RemoteSize: info.Size}, nil
	}
	return advanced(models.LogCursor{RemoteSize: info.Size, Offset: cursor.Offset}, data), nil
}

func (r *Reader) checkTarget(ctx context.Context, t models.BuildTarget) error {
	project, err := r.backend.Project(ctx, t.Project)
	if err != nil {
		return fmt.Errorf("reading project: %w", err)
	}
	if project == nil {
		return fmt.Errorf("%w: %s", ErrUnknownProject, t.Project)
	}
	if !project.HasRepositoryArch(t.Repository, t.Arch) {
		return fmt.Errorf("%w: %s/%s", ErrUnknownTarget, t.Repository, t.Arch)
	}
	return nil
}

func (r *Reader) fetch(ctx context.Context, t models.BuildTarget, offset, length int64) ([]byte, error) {
	data, err := r.backend.FetchLogChunk(ctx, t, offset, length)
	if err != nil {
		return nil, fmt.Errorf("fetching log chunk at %d: %w", offset, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", services.ErrBackendUnavailable, err)
	}
	if int64(len(data)) > length {
		data = data[:length]
	}
	return data, nil
}

func advanced(cursor models.LogCursor, data []byte) Chunk {
	cursor.Offset += int64(len(data))
	if cursor.Offset > cursor.RemoteSize {
		cursor.RemoteSize = cursor.Offset
	}
	state := StatePartial
	if cursor.Offset == cursor.RemoteSize {
		state = StateComplete
	}
	return Chunk{State: state, Data: data, Cursor: cursor, RemoteSize: cursor.RemoteSize}
}
