package workflows

import (
	"time"

	"orcaflow/internal/activities"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const defaultSweepsPerRun = 60

// RetrySweepWorkflow is the watchdog: it flips stalled running jobs back to
// retryable, re-drives retryable jobs whose backoff has passed, sleeps, and
// repeats. It continues-as-new periodically to keep history bounded.
func RetrySweepWorkflow(ctx workflow.Context, input SweepInput) error {
	if input.IntervalSecs <= 0 {
		input.IntervalSecs = 60
	}
	if input.SweepsPerRun <= 0 {
		input.SweepsPerRun = defaultSweepsPerRun
	}
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	for sweep := 0; sweep < input.SweepsPerRun; sweep++ {
		var marked activities.MarkStaleJobsOutput
		_ = workflow.ExecuteActivity(ctx, "MarkStaleJobsActivity", activities.MarkStaleJobsInput{
			StaleAfterSecs: input.StaleAfterSecs,
			Limit:          input.BatchSize,
		}).Get(ctx, &marked)

		var due activities.ListDueRetryJobsOutput
		if err := workflow.ExecuteActivity(ctx, "ListDueRetryJobsActivity", activities.ListDueRetryJobsInput{
			Limit: input.BatchSize,
		}).Get(ctx, &due); err == nil {
			for _, jobID := range due.JobIDs {
				childInput := input.Extraction
				childInput.JobID = jobID
				cwo := workflow.ChildWorkflowOptions{
					WorkflowID:        "extract-" + jobID,
					ParentClosePolicy: enumspb.PARENT_CLOSE_POLICY_ABANDON,
				}
				childCtx := workflow.WithChildOptions(ctx, cwo)
				// Only wait for the start; a duplicate workflow id means a
				// live run already owns the job.
				f := workflow.ExecuteChildWorkflow(childCtx, ExtractionWorkflow, childInput)
				_ = f.GetChildWorkflowExecution().Get(ctx, nil)
			}
		}

		if err := workflow.Sleep(ctx, time.Duration(input.IntervalSecs)*time.Second); err != nil {
			return err
		}
	}
	return workflow.NewContinueAsNewError(ctx, RetrySweepWorkflow, input)
}
