package settlement

import (
	"context"

	"go.uber.org/zap"
)

type compensation struct {
	step string
	undo func(ctx context.Context) error
}

// unitOfWork tracks the undo action of every committed step. Nothing is undone unless
// rollback is called.
type unitOfWork struct {
	logger        *zap.Logger
	documentNo    string
	compensations []compensation
}

func newUnitOfWork(logger *zap.Logger, documentNo string) *unitOfWork {
	return &unitOfWork{logger: logger, documentNo: documentNo}
}

func (u *unitOfWork) record(step string, undo func(ctx context.Context) error) {
	u.compensations = append(u.compensations, compensation{step: step, undo: undo})
}

// rollback runs the recorded compensations newest first. A failing compensation is logged and
// the rest still run.
func (u *unitOfWork) rollback(ctx context.Context) int {
	undone := 0
	for i := len(u.compensations) - 1; i >= 0; i-- {
		c := u.compensations[i]
		if err := c.undo(ctx); err != nil {
			u.logger.Warn("compensation failed",
				zap.String("document_number", u.documentNo),
				zap.String("step", c.step),
				zap.Error(err))
			continue
		}
		undone++
	}
	u.compensations = nil
	return undone
}
