package deliver

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/avolkov/paperboy/internal/model"
)

// FileDeliverer writes the plain-text digest to a writer instead of
// sending email. It backs the dry-run mode.
type FileDeliverer struct {
	out    io.Writer
	logger *slog.Logger
}

var _ Deliverer = (*FileDeliverer)(nil)

// NewFileDeliverer creates a deliverer writing to out
func NewFileDeliverer(out io.Writer, logger *slog.Logger) *FileDeliverer {
	return &FileDeliverer{out: out, logger: logger}
}

func (d *FileDeliverer) Name() string {
	return "file"
}

func (d *FileDeliverer) Deliver(ctx context.Context, digest model.Digest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := fmt.Fprint(d.out, RenderText(digest)); err != nil {
		return fmt.Errorf("write digest: %w", err)
	}
	d.logger.Info("digest written", "run_id", digest.RunID, "papers", digest.Len())
	return nil
}
