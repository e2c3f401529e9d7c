package service

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdq-signal-server/internal/domain"
	"github.com/pdq-signal-server/pkg/forest"
)

// riskCohort builds n cases where older patients die. Every third case is
// female.
func riskCohort(n int) ([]domain.CaseDemographics, []domain.OutcomeRecord) {
	var demo []domain.CaseDemographics
	var outc []domain.OutcomeRecord
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%d", 1000+i)
		age := float64(20 + (i*7)%70)
		sex := domain.SexMale
		if i%3 == 0 {
			sex = domain.SexFemale
		}
		demo = append(demo, domain.CaseDemographics{
			CaseID: id,
			Age:    domain.Float64Ptr(age),
			Sex:    sex,
			Weight: domain.Float64Ptr(60 + float64(i%25)),
		})
		code := "HO"
		if age >= 65 {
			code = domain.OutcomeDeath
		}
		outc = append(outc, domain.OutcomeRecord{CaseID: id, OutcomeCode: code})
	}
	return demo, outc
}

func TestRiskPipeline_Trained(t *testing.T) {
	demo, outc := riskCohort(60)
	pipeline := NewRiskPipeline(domain.DefaultAnalysisConfig(), newTestLogger())
	assert.Equal(t, domain.RiskNotRun, pipeline.State())
	assert.Nil(t, pipeline.Report())

	report := pipeline.Run(demo, outc)

	require.Equal(t, domain.RiskTrained, report.State, report.Diagnostic)
	assert.Equal(t, domain.RiskTrained, pipeline.State())
	assert.Equal(t, "Model trained successfully", report.Status())
	require.NotNil(t, report.Report)
	require.NotNil(t, report.Audit)

	audit := report.Audit
	assert.Equal(t, 60, audit.TotalRecords)
	assert.Equal(t, 60, audit.RecordsUsed)
	assert.Equal(t, []string{"age", "sex", "wt"}, audit.FeaturesUsed)
	assert.Equal(t, RiskTarget, audit.Target)
	assert.Equal(t, "RandomForestClassifier", audit.ModelUsed)
	assert.Equal(t, math.Round(report.Report.Accuracy*1000)/1000, audit.TestAccuracy)
	assert.GreaterOrEqual(t, audit.TestAccuracy, 0.0)
	assert.LessOrEqual(t, audit.TestAccuracy, 1.0)

	acc, ok := report.Report.Row(forest.LabelAccuracy)
	require.True(t, ok)
	assert.Equal(t, float64(18), acc.Support)
	assert.Equal(t, report.Report.Accuracy, acc.F1Score)

	_, ok = report.Report.Row(forest.LabelMacroAvg)
	assert.True(t, ok)
	weighted, ok := report.Report.Row(forest.LabelWeightedAvg)
	require.True(t, ok)
	assert.Equal(t, float64(18), weighted.Support)
}

func TestRiskPipeline_Deterministic(t *testing.T) {
	demo, outc := riskCohort(80)

	first := NewRiskPipeline(domain.DefaultAnalysisConfig(), newTestLogger()).Run(demo, outc)
	second := NewRiskPipeline(domain.DefaultAnalysisConfig(), newTestLogger()).Run(demo, outc)

	require.Equal(t, domain.RiskTrained, first.State)
	assert.Equal(t, first, second)
}

func TestRiskPipeline_RunsOnce(t *testing.T) {
	demo, outc := riskCohort(30)
	pipeline := NewRiskPipeline(domain.DefaultAnalysisConfig(), newTestLogger())

	first := pipeline.Run(demo, outc)
	second := pipeline.Run(nil, nil)

	assert.Same(t, first, second)
}

func TestRiskPipeline_Failed(t *testing.T) {
	tests := []struct {
		name string
		demo []domain.CaseDemographics
		outc []domain.OutcomeRecord
	}{
		{name: "empty input"},
		{
			name: "no joined rows",
			demo: []domain.CaseDemographics{{CaseID: "1", Age: domain.Float64Ptr(50), Sex: "M", Weight: domain.Float64Ptr(70)}},
			outc: []domain.OutcomeRecord{{CaseID: "2", OutcomeCode: "DE"}},
		},
		{
			name: "all rows missing features",
			demo: []domain.CaseDemographics{
				{CaseID: "1", Age: nil, Sex: "M", Weight: domain.Float64Ptr(70)},
				{CaseID: "2", Age: domain.Float64Ptr(40), Sex: "UNK", Weight: domain.Float64Ptr(70)},
				{CaseID: "3", Age: domain.Float64Ptr(40), Sex: "F", Weight: nil},
			},
			outc: []domain.OutcomeRecord{{CaseID: "1", OutcomeCode: "DE"}, {CaseID: "2", OutcomeCode: "HO"}, {CaseID: "3", OutcomeCode: "OT"}},
		},
		{
			name: "single usable row",
			demo: []domain.CaseDemographics{{CaseID: "1", Age: domain.Float64Ptr(50), Sex: "F", Weight: domain.Float64Ptr(70)}},
			outc: []domain.OutcomeRecord{{CaseID: "1", OutcomeCode: "DE"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pipeline := NewRiskPipeline(domain.DefaultAnalysisConfig(), newTestLogger())
			report := pipeline.Run(tt.demo, tt.outc)

			assert.Equal(t, domain.RiskFailed, report.State)
			assert.Equal(t, domain.RiskFailed, pipeline.State())
			assert.NotEmpty(t, report.Diagnostic)
			assert.True(t, strings.HasPrefix(report.Status(), "Model failed: "))
			assert.Nil(t, report.Report)
			assert.Nil(t, report.Audit)
		})
	}
}

func TestRiskPipeline_DropsIncompleteRows(t *testing.T) {
	demo, outc := riskCohort(40)
	demo = append(demo, domain.CaseDemographics{CaseID: "x1", Age: nil, Sex: "M", Weight: domain.Float64Ptr(80)})
	demo = append(demo, domain.CaseDemographics{CaseID: "x2", Age: domain.Float64Ptr(33), Sex: "", Weight: domain.Float64Ptr(80)})
	outc = append(outc, domain.OutcomeRecord{CaseID: "x1", OutcomeCode: "DE"}, domain.OutcomeRecord{CaseID: "x2", OutcomeCode: "OT"})

	report := NewRiskPipeline(domain.DefaultAnalysisConfig(), newTestLogger()).Run(demo, outc)

	require.Equal(t, domain.RiskTrained, report.State, report.Diagnostic)
	assert.Equal(t, 42, report.Audit.TotalRecords)
	assert.Equal(t, 40, report.Audit.RecordsUsed)
}

func TestBuildRiskDataset(t *testing.T) {
	demo := []domain.CaseDemographics{
		{CaseID: "1", Age: domain.Float64Ptr(70), Sex: "M", Weight: domain.Float64Ptr(80)},
		{CaseID: "2", Age: domain.Float64Ptr(30), Sex: "F", Weight: domain.Float64Ptr(55)},
	}
	outc := []domain.OutcomeRecord{
		{CaseID: "1", OutcomeCode: "DE"},
		{CaseID: "1", OutcomeCode: "HO"},
		{CaseID: "2", OutcomeCode: "OT"},
	}

	X, y, joined := buildRiskDataset(demo, outc)

	assert.Equal(t, 3, joined)
	assert.Equal(t, [][]float64{{70, 0, 80}, {70, 0, 80}, {30, 1, 55}}, X)
	assert.Equal(t, []int{1, 0, 0}, y)
}
