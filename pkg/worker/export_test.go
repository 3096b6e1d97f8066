package worker

import (
	"context"

	"github.com/cuemby/credcheck/pkg/model"
)

// ExportedProcess exposes the unexported process method to external tests
// in this package.
func ExportedProcess(w *Worker, ctx context.Context, task model.Task) {
	w.process(ctx, task)
}
