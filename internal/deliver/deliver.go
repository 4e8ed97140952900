package deliver

import (
	"context"

	"github.com/avolkov/paperboy/internal/model"
)

// Deliverer sends an assembled digest to its audience. Delivery either
// succeeds completely or fails; the pipeline only commits outcomes after
// success.
type Deliverer interface {
	Name() string
	Deliver(ctx context.Context, digest model.Digest) error
}
