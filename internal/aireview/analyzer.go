// Package aireview implements the automated permit review collaborator.
// The analyzer is deterministic: the same permit data always produces the
// same score, findings and recommendations.
package aireview

import (
	"context"
	"fmt"
	"time"

	"github.com/ahjlabs/fireline/internal/permit"
	"github.com/ahjlabs/fireline/pkg/ledger"
)

// DefaultModelVersion identifies the scoring rules in effect.
const DefaultModelVersion = "fireline-review-v1"

// Analyzer scores a permit's NFPA data against the checks below. It
// implements permit.AIReviewer.
type Analyzer struct {
	ModelVersion string
	now          func() time.Time
}

var _ permit.AIReviewer = (*Analyzer)(nil)

// NewAnalyzer creates an analyzer with the default model version.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		ModelVersion: DefaultModelVersion,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the analyzer clock. Intended for tests.
func (a *Analyzer) WithClock(now func() time.Time) *Analyzer {
	a.now = now
	return a
}

// scoredFields are the NFPA fields that contribute to the confidence score.
var scoredFields = []string{
	ledger.FieldFireAlarmType,
	ledger.FieldNumberOfDevices,
	ledger.FieldPowerSupplyInfo,
	ledger.FieldSystemType,
	ledger.FieldCoverageArea,
	ledger.FieldTestResults,
	ledger.FieldNFPAStandard,
	ledger.FieldComplianceLevel,
}

// Review scores the permit. The score starts at 100 and loses points per
// finding; confidence reflects how much of the expected data was populated.
func (a *Analyzer) Review(ctx context.Context, p *ledger.Permit) (ledger.AIReview, error) {
	if err := ctx.Err(); err != nil {
		return ledger.AIReview{}, err
	}

	review := ledger.AIReview{
		Score:           100,
		Findings:        []string{},
		Recommendations: []string{},
		Timestamp:       a.now(),
		ModelVersion:    a.ModelVersion,
	}

	data := p.NFPAData

	if v, ok := data[ledger.FieldTestResults]; !ok || v.IsAbsent() {
		review.Score -= 15
		review.Findings = append(review.Findings, "No test results recorded")
		review.Recommendations = append(review.Recommendations, "Attach system test results before submission")
	}

	if v, ok := data[ledger.FieldNumberOfDevices]; ok && v.Kind == ledger.KindInt && v.Int <= 0 {
		review.Score -= 20
		review.Findings = append(review.Findings, "Device count is zero")
		review.Recommendations = append(review.Recommendations, "Verify the number of installed devices")
	}

	if v, ok := data[ledger.FieldNFPAStandard]; !ok || v.IsAbsent() {
		review.Score -= 10
		review.Findings = append(review.Findings, "No NFPA standard declared")
		review.Recommendations = append(review.Recommendations, "Declare the applicable NFPA standard")
	}

	if v, ok := data[ledger.FieldPowerSupplyInfo]; !ok || v.IsAbsent() {
		review.Score -= 10
		review.Findings = append(review.Findings, "Power supply information missing")
		review.Recommendations = append(review.Recommendations, "Document primary and secondary power supplies")
	}

	if hazards := data.SpecialHazards(); len(hazards) > 0 {
		review.Score -= 5
		review.Findings = append(review.Findings,
			fmt.Sprintf("Special hazards declared: %d", len(hazards)))
		review.Recommendations = append(review.Recommendations, "Route to hazmat review before approval")
	}

	if p.Property.SquareFootage > 0 && p.Property.NumberOfFloors > 3 {
		if v, ok := data[ledger.FieldCoverageArea]; !ok || v.IsAbsent() {
			review.Score -= 10
			review.Findings = append(review.Findings, "Multi-floor building without declared coverage area")
			review.Recommendations = append(review.Recommendations, "Specify per-floor coverage area")
		}
	}

	if review.Score < 0 {
		review.Score = 0
	}

	populated := 0
	for _, field := range scoredFields {
		if v, ok := data[field]; ok && !v.IsAbsent() {
			populated++
		}
	}
	review.Confidence = float64(populated) / float64(len(scoredFields))

	return review, nil
}
