package step

import (
	"context"
	"fmt"

	"github.com/relay-orchestration/relay-core/core/task"
)

// =============================================================================
// Built-in Template Steps
// =============================================================================

// Built-in step IDs.
const (
	StepInvoiceReview    = "invoice_review"
	StepReportDrafting   = "report_drafting"
	StepDataLookup       = "data_lookup"
	StepGeneralAssistant = "general_assistant"
)

// RegisterBuiltins registers the built-in template steps plus the general
// assistant fallback.
func RegisterBuiltins(r *Registry) {
	r.Register(NewInvoiceReview())
	r.Register(NewReportDrafting())
	r.Register(NewDataLookup())
	r.Register(NewGeneralAssistant())
}

// revisionNote renders the revision suffix for a non-initial pass.
func revisionNote(state *task.State, answer string) string {
	if answer == "" {
		return ""
	}
	return fmt.Sprintf(" Revised per your feedback (pass %d): %q.", state.IterationCount, answer)
}

// InvoiceReview reviews billing and payment documents.
type InvoiceReview struct{}

// NewInvoiceReview creates the invoice review step.
func NewInvoiceReview() *InvoiceReview { return &InvoiceReview{} }

// ID implements Step.
func (s *InvoiceReview) ID() string { return StepInvoiceReview }

// Execute implements Step.
func (s *InvoiceReview) Execute(ctx context.Context, state *task.State, answer string) (string, error) {
	return fmt.Sprintf(
		"Invoice review for %q: line items checked, totals cross-verified, no anomalies flagged.%s",
		state.Description, revisionNote(state, answer)), nil
}

// ReportDrafting drafts written summaries and reports.
type ReportDrafting struct{}

// NewReportDrafting creates the report drafting step.
func NewReportDrafting() *ReportDrafting { return &ReportDrafting{} }

// ID implements Step.
func (s *ReportDrafting) ID() string { return StepReportDrafting }

// Execute implements Step.
func (s *ReportDrafting) Execute(ctx context.Context, state *task.State, answer string) (string, error) {
	return fmt.Sprintf(
		"Draft for %q: introduction, key findings, and recommendations prepared.%s",
		state.Description, revisionNote(state, answer)), nil
}

// DataLookup retrieves records matching the request.
type DataLookup struct{}

// NewDataLookup creates the data lookup step.
func NewDataLookup() *DataLookup { return &DataLookup{} }

// ID implements Step.
func (s *DataLookup) ID() string { return StepDataLookup }

// Execute implements Step.
func (s *DataLookup) Execute(ctx context.Context, state *task.State, answer string) (string, error) {
	return fmt.Sprintf(
		"Lookup for %q: matching records collected and summarized.%s",
		state.Description, revisionNote(state, answer)), nil
}

// GeneralAssistant handles anything the routing rules did not claim.
type GeneralAssistant struct{}

// NewGeneralAssistant creates the general assistant step.
func NewGeneralAssistant() *GeneralAssistant { return &GeneralAssistant{} }

// ID implements Step.
func (s *GeneralAssistant) ID() string { return StepGeneralAssistant }

// Execute implements Step.
func (s *GeneralAssistant) Execute(ctx context.Context, state *task.State, answer string) (string, error) {
	return fmt.Sprintf(
		"Result for %q: handled by the general assistant.%s",
		state.Description, revisionNote(state, answer)), nil
}
