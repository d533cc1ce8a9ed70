package detect

import (
	"github.com/sells-group/orgmap/internal/model"
)

// Compliance and pipeline confidences.
const (
	ConfidenceComplianceCustom = 0.65
	ConfidenceComplianceTask   = 0.50
	ConfidenceComplianceNone   = 0.80

	ConfidencePipelineOpportunity = 0.85
	ConfidencePipelineCustom      = 0.60
	ConfidencePipelineLead        = 0.55
	ConfidencePipelineNone        = 0.80
)

var (
	stageWords  = []string{"stage", "status", "phase"}
	amountWords = []string{"amount", "value", "revenue", "asset"}
)

// DetectCompliance reports how compliance reviews are tracked.
func DetectCompliance(b *model.MetadataBundle) model.ComplianceMapping {
	for _, m := range b.CustomObjectMatches {
		if m.Concept != model.ConceptCompliance {
			continue
		}
		out := model.ComplianceMapping{
			Type:       model.ComplianceCustomObject,
			Object:     m.Name,
			Confidence: ConfidenceComplianceCustom,
		}
		if d := b.Describe(m.Name); d != nil {
			for i := range d.Fields {
				f := &d.Fields[i]
				switch {
				case out.DateField == "" && (f.Type == model.FieldTypeDate || f.Type == model.FieldTypeDateTime) && f.Custom:
					out.DateField = f.Name
				case out.StatusField == "" && f.Type == model.FieldTypePicklist && matches(statusWords, f):
					out.StatusField = f.Name
				}
			}
		}
		return out
	}
	if b.Count("Task") > 0 {
		return model.ComplianceMapping{
			Type:        model.ComplianceTaskBased,
			Object:      "Task",
			DateField:   "ActivityDate",
			StatusField: "Status",
			Confidence:  ConfidenceComplianceTask,
		}
	}
	return model.ComplianceMapping{Type: model.ComplianceNone, Confidence: ConfidenceComplianceNone}
}

// DetectPipeline reports where the sales pipeline lives.
func DetectPipeline(b *model.MetadataBundle) model.PipelineMapping {
	if b.Count("Opportunity") > 0 {
		return model.PipelineMapping{
			Type:        model.PipelineOpportunity,
			Object:      "Opportunity",
			StageField:  "StageName",
			AmountField: "Amount",
			Confidence:  ConfidencePipelineOpportunity,
		}
	}
	for _, m := range b.CustomObjectMatches {
		if m.Concept != model.ConceptPipeline {
			continue
		}
		out := model.PipelineMapping{
			Type:       model.PipelineCustomObject,
			Object:     m.Name,
			Confidence: ConfidencePipelineCustom,
		}
		if d := b.Describe(m.Name); d != nil {
			for i := range d.Fields {
				f := &d.Fields[i]
				switch {
				case out.StageField == "" && f.Type == model.FieldTypePicklist && matches(stageWords, f):
					out.StageField = f.Name
				case out.AmountField == "" && f.Type == model.FieldTypeCurrency && matches(amountWords, f):
					out.AmountField = f.Name
				}
			}
		}
		return out
	}
	if b.Count("Lead") > 0 {
		return model.PipelineMapping{
			Type:       model.PipelineLead,
			Object:     "Lead",
			StageField: "Status",
			Confidence: ConfidencePipelineLead,
		}
	}
	return model.PipelineMapping{Type: model.PipelineNone, Confidence: ConfidencePipelineNone}
}
