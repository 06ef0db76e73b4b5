package internal

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by a Repository when the requested object does not exist.
var ErrNotFound = errors.New("object not found")

type Repository interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, reader io.Reader) error
}
