package repository

import (
	"context"

	"CopyRelay/internal/domain/models"
)

// SignalArchive exports accepted signals to a downstream system for
// analytics. The in-memory log stays authoritative; archive writes happen
// off the request path and failures never reject a signal.
type SignalArchive interface {
	Archive(ctx context.Context, sig models.Signal) error
	Close() error
}

// NopArchive discards signals. Used when archive.type is "none".
type NopArchive struct{}

func (NopArchive) Archive(context.Context, models.Signal) error { return nil }
func (NopArchive) Close() error                                 { return nil }
