package job

import (
	"context"

	"github.com/xxxsen/docsassist/internal/service"
)

type IReconciler interface {
	Run(ctx context.Context, full bool) (*service.ReconcileReport, error)
}

// ReconcileJob repairs drift between chunk records and the vector index.
type ReconcileJob struct {
	reconciler IReconciler
	full       bool
}

func NewReconcileJob(reconciler IReconciler, full bool) *ReconcileJob {
	return &ReconcileJob{reconciler: reconciler, full: full}
}

func (j *ReconcileJob) Name() string {
	if j.full {
		return "reindex"
	}
	return "reconcile"
}

func (j *ReconcileJob) Run(ctx context.Context) error {
	_, err := j.reconciler.Run(ctx, j.full)
	return err
}
