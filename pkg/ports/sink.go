package ports

import (
	"context"

	"github.com/hephy-dd/pqc/pkg/domain"
)

// ResultSink receives one record per measurement completion. Sink failures
// are logged by the executor and never fail the run.
type ResultSink interface {
	Write(ctx context.Context, record domain.ResultRecord) error
	Close() error
}
