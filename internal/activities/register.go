package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.ClaimJobActivity)
	w.RegisterActivity(a.GetJobFileActivity)
	w.RegisterActivity(a.FetchPDFTextActivity)
	w.RegisterActivity(a.OCRTextActivity)
	w.RegisterActivity(a.PDFCoTextActivity)
	w.RegisterActivity(a.StoreFileTextActivity)
	w.RegisterActivity(a.ProbeModelsActivity)
	w.RegisterActivity(a.PlanChunksActivity)
	w.RegisterActivity(a.ExtractChunkActivity)
	w.RegisterActivity(a.ExtractDirectPDFActivity)
	w.RegisterActivity(a.PersistChunkItemsActivity)
	w.RegisterActivity(a.ReplaceFileItemsActivity)
	w.RegisterActivity(a.MergeFileItemsActivity)
	w.RegisterActivity(a.CountJobItemsActivity)
	w.RegisterActivity(a.UpsertSummaryActivity)
	w.RegisterActivity(a.RecordModelAttemptsActivity)
	w.RegisterActivity(a.HydrateActivity)
	w.RegisterActivity(a.UpdateJobStatusActivity)
	w.RegisterActivity(a.HeartbeatJobActivity)
	w.RegisterActivity(a.SetDebugContextActivity)
	w.RegisterActivity(a.UpdateFileProgressActivity)
	w.RegisterActivity(a.ListDueRetryJobsActivity)
	w.RegisterActivity(a.MarkStaleJobsActivity)
}
