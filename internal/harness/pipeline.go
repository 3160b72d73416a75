package harness

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/tracecheck/internal/tap"
)

// Stage is one named step of the pipeline.
type Stage struct {
	Name string
	Run  func(ctx context.Context) StageResult
}

// Pipeline is an ordered list of stages that stops at the first Fatal.
type Pipeline []Stage

// Run executes the stages in order, reporting each Recorded result through
// rep and mirroring it into res. On Fatal it calls rep.Bail with cleanup
// and returns the resulting *tap.BailError. A stage that panics is treated
// as Fatal.
func (p Pipeline) Run(ctx context.Context, rep *tap.Reporter, res *Result, cleanup func(), logger *slog.Logger) error {
	for _, stage := range p {
		logger.Debug("stage", "name", stage.Name)

		switch r := runStage(ctx, stage).(type) {
		case Continue:
		case Recorded:
			index := rep.Next()
			rep.Check(r.Passed, r.Description)
			res.AddCheck(index, r.Passed, r.Description)
			logger.Info("check", "index", index, "passed", r.Passed, "description", r.Description)
		case Fatal:
			logger.Error("bail", "stage", stage.Name, "reason", r.Reason)
			bail := rep.Bail(r.Reason, cleanup)
			res.Bailed = true
			res.BailReason = bail.Reason
			return bail
		}
	}
	return nil
}

func runStage(ctx context.Context, stage Stage) (res StageResult) {
	defer func() {
		if v := recover(); v != nil {
			res = Fatal{Reason: fmt.Sprintf("stage %s failed unexpectedly: %v", stage.Name, v)}
		}
	}()
	if err := ctx.Err(); err != nil {
		return Fatal{Reason: fmt.Sprintf("interrupted before %s: %v", stage.Name, err)}
	}
	if res = stage.Run(ctx); res == nil {
		return Fatal{Reason: fmt.Sprintf("stage %s returned no result", stage.Name)}
	}
	return res
}
