package workflows

import (
	"context"
	"errors"
	"testing"

	"orcaflow/internal/activities"
	"orcaflow/internal/extract"
	"orcaflow/internal/models"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

// activityCalls records which optional cascade stages actually ran, and
// every chunk extraction request as dispatched. ExtractChunk, when set,
// decides the chunk outcome per request.
type activityCalls struct {
	OCR          bool
	PDFCo        bool
	Direct       bool
	Hydrated     bool
	Replaced     []extract.Item
	ChunkCalls   []activities.ExtractChunkInput
	ExtractChunk func(activities.ExtractChunkInput) (activities.ExtractChunkOutput, error)
}

func sampleItems(n int) []extract.Item {
	items := make([]extract.Item, 0, n)
	for i := 0; i < n; i++ {
		q := float64(i + 1)
		items = append(items, extract.Item{Description: "ALVENARIA BLOCO CERAMICO", Unit: "M2", Quantity: &q, Confidence: 0.9})
	}
	return items
}

func registerExtractionDefaults(env *testsuite.TestWorkflowEnvironment, calls *activityCalls) {
	registerActivityName(env, "ClaimJobActivity", func(_ context.Context, in activities.ClaimJobInput) (activities.ClaimJobOutput, error) {
		return activities.ClaimJobOutput{Job: models.Job{JobID: in.JobID, Status: models.JobRunning}, Claimed: true}, nil
	})
	registerActivityName(env, "GetJobFileActivity", func(_ context.Context, in activities.GetJobFileInput) (activities.GetJobFileOutput, error) {
		return activities.GetJobFileOutput{File: models.SourceFile{
			FileID:      "f1",
			JobID:       in.JobID,
			Role:        models.FileRoleSynthetic,
			Filename:    "orcamento.pdf",
			ContentType: "application/pdf",
			StoragePath: "jobs/j1/orcamento.pdf",
		}}, nil
	})
	registerActivityName(env, "ProbeModelsActivity", func(context.Context, activities.ProbeModelsInput) (activities.ProbeModelsOutput, error) {
		return activities.ProbeModelsOutput{BaseModel: "gemini-1.5-flash-002"}, nil
	})
	registerActivityName(env, "FetchPDFTextActivity", func(context.Context, activities.FetchPDFTextInput) (activities.FetchPDFTextOutput, error) {
		return activities.FetchPDFTextOutput{
			Text:      "ITEM 1 ALVENARIA BLOCO CERAMICO M2 120,00 45,90 5.508,00\fITEM 2 CONCRETO FCK 25 M3 80,00\fITEM 3 ACO CA-50 KG 1.500,00",
			PageCount: 3,
		}, nil
	})
	registerActivityName(env, "StoreFileTextActivity", func(_ context.Context, in activities.StoreFileTextInput) (activities.StoreFileTextOutput, error) {
		return activities.StoreFileTextOutput{Text: in.Text, StoredChars: len(in.Text)}, nil
	})
	registerActivityName(env, "PlanChunksActivity", func(_ context.Context, in activities.PlanChunksInput) (activities.PlanChunksOutput, error) {
		half := len(in.Text) / 2
		return activities.PlanChunksOutput{Chunks: []string{in.Text[:half], in.Text[half:]}}, nil
	})
	registerActivityName(env, "ExtractChunkActivity", func(_ context.Context, in activities.ExtractChunkInput) (activities.ExtractChunkOutput, error) {
		calls.ChunkCalls = append(calls.ChunkCalls, in)
		if calls.ExtractChunk != nil {
			return calls.ExtractChunk(in)
		}
		return activities.ExtractChunkOutput{Items: sampleItems(20)}, nil
	})
	registerActivityName(env, "ExtractDirectPDFActivity", func(context.Context, activities.ExtractDirectPDFInput) (activities.ExtractChunkOutput, error) {
		calls.Direct = true
		return activities.ExtractChunkOutput{}, nil
	})
	registerActivityName(env, "OCRTextActivity", func(context.Context, activities.OCRTextInput) (activities.OCRTextOutput, error) {
		calls.OCR = true
		return activities.OCRTextOutput{}, errors.New("ocr service not configured")
	})
	registerActivityName(env, "PDFCoTextActivity", func(context.Context, activities.OCRTextInput) (activities.OCRTextOutput, error) {
		calls.PDFCo = true
		return activities.OCRTextOutput{}, errors.New("pdf.co not configured")
	})
	registerActivityName(env, "PersistChunkItemsActivity", func(_ context.Context, in activities.PersistChunkItemsInput) (activities.PersistChunkItemsOutput, error) {
		return activities.PersistChunkItemsOutput{Inserted: len(in.Items)}, nil
	})
	registerActivityName(env, "ReplaceFileItemsActivity", func(_ context.Context, in activities.ReplaceFileItemsInput) (activities.ReplaceFileItemsOutput, error) {
		calls.Replaced = in.Items
		return activities.ReplaceFileItemsOutput{Inserted: len(in.Items)}, nil
	})
	registerActivityName(env, "MergeFileItemsActivity", func(_ context.Context, in activities.MergeFileItemsInput) (activities.MergeFileItemsOutput, error) {
		return activities.MergeFileItemsOutput{Added: len(in.Items), Total: len(in.Items)}, nil
	})
	registerActivityName(env, "CountJobItemsActivity", func(context.Context, activities.CountJobItemsInput) (activities.CountJobItemsOutput, error) {
		return activities.CountJobItemsOutput{Count: 40}, nil
	})
	registerActivityName(env, "UpsertSummaryActivity", func(context.Context, activities.UpsertSummaryInput) error { return nil })
	registerActivityName(env, "HydrateActivity", func(context.Context, activities.HydrateInput) error {
		calls.Hydrated = true
		return nil
	})
	registerActivityName(env, "UpdateJobStatusActivity", func(context.Context, activities.UpdateJobStatusInput) error { return nil })
	registerActivityName(env, "HeartbeatJobActivity", func(context.Context, activities.HeartbeatInput) error { return nil })
	registerActivityName(env, "SetDebugContextActivity", func(context.Context, activities.SetDebugContextInput) error { return nil })
	registerActivityName(env, "UpdateFileProgressActivity", func(context.Context, activities.UpdateFileProgressInput) error { return nil })
}

func TestExtractionWorkflowSuccess(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ExtractionWorkflow)
	calls := &activityCalls{}
	registerExtractionDefaults(env, calls)

	env.ExecuteWorkflow(ExtractionWorkflow, ExtractionInput{JobID: "j1", ModelCandidates: []string{"gemini-1.5-flash-002"}})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out ExtractionResult
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, models.JobDone, out.Status)
	require.Equal(t, models.ReasonStandardSuccess, out.Reason)
	require.Equal(t, 40, out.ItemCount)
	require.Equal(t, "gemini-1.5-flash-002", out.ModelUsed)
	require.True(t, calls.Hydrated)
	// Text layer yielded items above threshold: no fallback stage should run.
	require.False(t, calls.Direct)
	require.False(t, calls.OCR)
	require.False(t, calls.PDFCo)
}

func TestExtractionWorkflowLowCompletenessTriggersDirectPass(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ExtractionWorkflow)
	calls := &activityCalls{}
	registerExtractionDefaults(env, calls)
	// Ten pages should carry on the order of 120 items; ten total clears the
	// item floor but fails validation, so the direct pass must still run.
	env.OnActivity("FetchPDFTextActivity", mock.Anything, mock.Anything).
		Return(activities.FetchPDFTextOutput{
			Text:      "ITEM 1 ALVENARIA BLOCO CERAMICO M2 120,00 45,90 5.508,00\fITEM 2 CONCRETO FCK 25 M3 80,00",
			PageCount: 10,
		}, nil)
	calls.ExtractChunk = func(activities.ExtractChunkInput) (activities.ExtractChunkOutput, error) {
		return activities.ExtractChunkOutput{Items: sampleItems(5)}, nil
	}
	env.OnActivity("CountJobItemsActivity", mock.Anything, mock.Anything).
		Return(activities.CountJobItemsOutput{Count: 10}, nil)

	env.ExecuteWorkflow(ExtractionWorkflow, ExtractionInput{JobID: "j1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out ExtractionResult
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, models.JobWaitingUser, out.Status)
	require.Equal(t, models.ReasonLowCompleteness, out.Reason)
	require.True(t, calls.Direct)
	// Above the item floor, so the OCR stages stay out of it.
	require.False(t, calls.OCR)
	require.False(t, calls.PDFCo)
	require.False(t, calls.Hydrated)
}

func TestExtractionWorkflowEscalatesChunkToNextModel(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ExtractionWorkflow)
	calls := &activityCalls{}
	registerExtractionDefaults(env, calls)
	// The base model fails every chunk with a non-throttle error; each chunk
	// gets one retry on the reserve model before it would count as lost.
	calls.ExtractChunk = func(in activities.ExtractChunkInput) (activities.ExtractChunkOutput, error) {
		if in.Model == "gemini-1.5-pro" {
			return activities.ExtractChunkOutput{Items: sampleItems(20)}, nil
		}
		return activities.ExtractChunkOutput{}, errors.New("googleapi: Error 500: backend error")
	}

	env.ExecuteWorkflow(ExtractionWorkflow, ExtractionInput{
		JobID:           "j1",
		ModelCandidates: []string{"gemini-1.5-flash-002", "gemini-1.5-pro"},
	})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out ExtractionResult
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, models.JobDone, out.Status)
	require.Equal(t, models.ReasonStandardSuccess, out.Reason)
	require.Equal(t, 40, out.ItemCount)

	escalated := 0
	for _, c := range calls.ChunkCalls {
		if c.Model == "gemini-1.5-pro" {
			escalated++
			require.Equal(t, "reprocess", c.Phase)
		} else {
			require.Empty(t, c.Phase)
		}
	}
	require.Equal(t, 2, escalated)
	require.False(t, calls.Direct)
	require.False(t, calls.OCR)
}

func TestExtractionWorkflowIdempotentWhenDone(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ExtractionWorkflow)
	registerActivityName(env, "ClaimJobActivity", func(_ context.Context, in activities.ClaimJobInput) (activities.ClaimJobOutput, error) {
		return activities.ClaimJobOutput{Job: models.Job{
			JobID:      in.JobID,
			Status:     models.JobDone,
			ReasonCode: models.ReasonStandardSuccess,
			Message:    "extraction completed",
		}}, nil
	})

	env.ExecuteWorkflow(ExtractionWorkflow, ExtractionInput{JobID: "j1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out ExtractionResult
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, models.JobDone, out.Status)
	require.Equal(t, models.ReasonStandardSuccess, out.Reason)
}

func TestExtractionWorkflowRateLimitShortCircuitsCascade(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ExtractionWorkflow)
	calls := &activityCalls{}
	registerExtractionDefaults(env, calls)
	env.OnActivity("ExtractChunkActivity", mock.Anything, mock.Anything).
		Return(activities.ExtractChunkOutput{}, errors.New("googleapi: Error 429: rate limit exceeded"))

	env.ExecuteWorkflow(ExtractionWorkflow, ExtractionInput{JobID: "j1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out ExtractionResult
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, models.JobWaitingUser, out.Status)
	require.Equal(t, models.ReasonRateLimit, out.Reason)
	// A throttle must not trigger the OCR fallbacks.
	require.False(t, calls.Direct)
	require.False(t, calls.OCR)
	require.False(t, calls.PDFCo)
	require.False(t, calls.Hydrated)
}

func TestExtractionWorkflowProbeFailureIsRetryable(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ExtractionWorkflow)
	calls := &activityCalls{}
	registerExtractionDefaults(env, calls)
	env.OnActivity("ProbeModelsActivity", mock.Anything, mock.Anything).
		Return(activities.ProbeModelsOutput{}, errors.New("no model candidate available: all 2 candidates failed"))

	env.ExecuteWorkflow(ExtractionWorkflow, ExtractionInput{JobID: "j1", RetryAfterSecs: 45})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out ExtractionResult
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, models.JobRetryable, out.Status)
	require.Equal(t, models.ReasonAIUnavailable, out.Reason)
	require.False(t, calls.Hydrated)
}

func TestExtractionWorkflowPlaceholderWhenNothingExtracted(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ExtractionWorkflow)
	calls := &activityCalls{}
	registerExtractionDefaults(env, calls)
	env.OnActivity("ExtractChunkActivity", mock.Anything, mock.Anything).
		Return(activities.ExtractChunkOutput{}, nil)
	env.OnActivity("CountJobItemsActivity", mock.Anything, mock.Anything).
		Return(activities.CountJobItemsOutput{Count: 0}, nil)

	env.ExecuteWorkflow(ExtractionWorkflow, ExtractionInput{JobID: "j1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out ExtractionResult
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, models.JobWaitingUser, out.Status)
	require.Equal(t, models.ReasonNoItems, out.Reason)
	// Every fallback stage was tried before giving up.
	require.True(t, calls.Direct)
	require.True(t, calls.OCR)
	require.True(t, calls.PDFCo)
	// The synthesized placeholder row flags itself for review.
	require.Len(t, calls.Replaced, 1)
	require.Contains(t, calls.Replaced[0].Description, "manual review")
	require.InDelta(t, 0.1, calls.Replaced[0].Confidence, 1e-9)
	require.Nil(t, calls.Replaced[0].Quantity)
	require.False(t, calls.Hydrated)
}

func TestExtractionWorkflowStructurallyInvalidResult(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ExtractionWorkflow)
	calls := &activityCalls{}
	registerExtractionDefaults(env, calls)
	env.OnActivity("FetchPDFTextActivity", mock.Anything, mock.Anything).
		Return(activities.FetchPDFTextOutput{Text: "ITEM 1 ALVENARIA BLOCO CERAMICO M2 120,00 45,90 5.508,00 CONCRETO", PageCount: 10}, nil)
	env.OnActivity("ExtractChunkActivity", mock.Anything, mock.Anything).
		Return(activities.ExtractChunkOutput{Items: sampleItems(1)}, nil)
	env.OnActivity("CountJobItemsActivity", mock.Anything, mock.Anything).
		Return(activities.CountJobItemsOutput{Count: 3}, nil)

	env.ExecuteWorkflow(ExtractionWorkflow, ExtractionInput{JobID: "j1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out ExtractionResult
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, models.JobWaitingUser, out.Status)
	require.Equal(t, models.ReasonStructurallyInvalid, out.Reason)
	require.False(t, calls.Hydrated)
}

func TestExtractionWorkflowHydrationFailureParksJob(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ExtractionWorkflow)
	calls := &activityCalls{}
	registerExtractionDefaults(env, calls)
	env.OnActivity("HydrateActivity", mock.Anything, mock.Anything).
		Return(errors.New("hydration returned status 500: internal error"))

	env.ExecuteWorkflow(ExtractionWorkflow, ExtractionInput{JobID: "j1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out ExtractionResult
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, models.JobWaitingUser, out.Status)
	require.Equal(t, models.ReasonHydrationFailed, out.Reason)
}

func TestRetrySweepWorkflowContinuesAsNew(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(RetrySweepWorkflow)
	marked := false
	listed := false
	registerActivityName(env, "MarkStaleJobsActivity", func(context.Context, activities.MarkStaleJobsInput) (activities.MarkStaleJobsOutput, error) {
		marked = true
		return activities.MarkStaleJobsOutput{Marked: 1}, nil
	})
	registerActivityName(env, "ListDueRetryJobsActivity", func(context.Context, activities.ListDueRetryJobsInput) (activities.ListDueRetryJobsOutput, error) {
		listed = true
		return activities.ListDueRetryJobsOutput{}, nil
	})

	env.ExecuteWorkflow(RetrySweepWorkflow, SweepInput{BatchSize: 10, IntervalSecs: 1, SweepsPerRun: 2})
	require.True(t, env.IsWorkflowCompleted())
	require.True(t, marked)
	require.True(t, listed)

	err := env.GetWorkflowError()
	require.Error(t, err)
	var can *workflow.ContinueAsNewError
	require.True(t, errors.As(err, &can))
}
