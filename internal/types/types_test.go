package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptimizationResultToleratesMissingSections(t *testing.T) {
	var result OptimizationResult
	require.NoError(t, json.Unmarshal([]byte(`{"pipeline":"v4","ats":{"status":"ok","pdf_path":null}}`), &result))

	assert.NotNil(t, result.ATS)
	assert.Nil(t, result.Gap())
	assert.Nil(t, result.Interview)
	assert.False(t, result.PDFReady())
	assert.True(t, result.HasAgentData(AgentATS))
	assert.False(t, result.HasAgentData(AgentGhostwriter))
	assert.False(t, result.HasAgentData(AgentSpyglass))
}

func TestPDFReadyPrefersSummary(t *testing.T) {
	path := "/tmp/out.pdf"
	result := &OptimizationResult{
		ATS:     &ATSSection{PDFPath: &path},
		Summary: &Summary{PDFReady: false},
	}
	assert.False(t, result.PDFReady())

	result.Summary = nil
	assert.True(t, result.PDFReady())

	var nilResult *OptimizationResult
	assert.False(t, nilResult.PDFReady())
}

func TestFormatScore(t *testing.T) {
	assert.Equal(t, "42", FormatScore(Float(42)))
	assert.Equal(t, "81.5", FormatScore(Float(81.5)))
	assert.Equal(t, "--", FormatScore(nil))
}

func TestPriorityRank(t *testing.T) {
	assert.Less(t, PriorityCritical.Rank(), PriorityHigh.Rank())
	assert.Less(t, PriorityHigh.Rank(), PriorityMedium.Rank())
	assert.Less(t, PriorityMedium.Rank(), PriorityNiceToHave.Rank())
	assert.Less(t, PriorityNiceToHave.Rank(), Priority("someday").Rank())
}

func TestAgentID(t *testing.T) {
	assert.True(t, AgentSpyglass.HasPanel())
	assert.False(t, AgentOrchestrator.HasPanel())
	assert.True(t, AgentOrchestrator.Valid())
	assert.False(t, AgentID("NOPE").Valid())
}

func TestEnumValid(t *testing.T) {
	for _, v := range []Verdict{VerdictReject, VerdictWeak, VerdictAcceptable, VerdictStrong, VerdictExceptional} {
		assert.True(t, v.Valid(), v)
	}
	assert.False(t, Verdict("meh").Valid())

	for _, p := range []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityNiceToHave} {
		assert.True(t, p.Valid(), p)
	}
	assert.False(t, Priority("someday").Valid())

	assert.True(t, ProbeDegraded.Valid())
	assert.False(t, ProbeState("").Valid())
}

func TestRequestValidation(t *testing.T) {
	assert.NoError(t, (&OptimizeRequest{ResumeID: "r1", JobDescription: "Go"}).Validate())
	assert.Error(t, (&OptimizeRequest{ResumeID: "r1"}).Validate())
	assert.Error(t, (&GradeRequest{Question: "q"}).Validate())
	assert.Error(t, (&ChatRequest{}).Validate())
	assert.Error(t, (&UploadRequest{Filename: "cv.pdf", UserEmail: "not-an-email"}).Validate())
	assert.NoError(t, (&UploadRequest{Filename: "cv.pdf", UserEmail: "a@b.co"}).Validate())
	assert.NoError(t, (&LinkedInRequest{ResumeID: "r1"}).Validate())
}
