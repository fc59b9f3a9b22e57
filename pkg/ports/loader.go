package ports

import (
	"context"
	"io"

	"github.com/hephy-dd/pqc/pkg/domain"
)

// SequenceLoader produces the initial sequence tree from a declarative
// definition. Implementations validate the document against a schema
// before handing the tree to the executor.
type SequenceLoader interface {
	Load(ctx context.Context, r io.Reader) (*domain.Node, error)
}

// ResourceOpener opens the transport of one physical resource (socket or
// serial handle). Workers own the returned handle exclusively and close it
// when the worker is disabled or stopped.
type ResourceOpener interface {
	Open(ctx context.Context) (io.ReadWriteCloser, error)
}

// ResourceOpenerFunc adapts a function to the ResourceOpener interface.
type ResourceOpenerFunc func(ctx context.Context) (io.ReadWriteCloser, error)

// Open implements ResourceOpener.
func (f ResourceOpenerFunc) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	return f(ctx)
}
