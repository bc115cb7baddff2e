// Package analysis implements the review analysis pipeline.
//
// A review passes through four stages in a fixed order:
//
//	Triage -> Consult (conditional) -> Draft -> Localize
//
// Every stage is fault-isolated. A failed backend call yields the stage's
// documented default and the pipeline moves on; the outcome of each stage is
// recorded in the returned domain.AnalysisTrace. Process only returns an error
// when the run itself could not complete (cancelled context or a recovered
// panic), in which case the caller must not advance the record.
package analysis
