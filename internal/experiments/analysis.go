// Package experiments turns aggregated A/B counts into results, winners,
// recommendations and traffic reallocation decisions. It does no I/O.
package experiments

import (
	"fmt"
	"math"
	"sort"

	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
)

const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
)

// Policy holds the thresholds, in percentage points and event counts
type Policy struct {
	RecommendAbove      float64
	HighConfidenceAbove float64
	OptimizeAbove       float64
	MinSampleSize       int
	MinDataPoints       int
	PromotedSplit       int
}

// DefaultPolicy: recommend above 5pp, high confidence and auto-optimise above
// 10pp with more than 50 events for the winner, then skew traffic 80/20.
func DefaultPolicy() Policy {
	return Policy{
		RecommendAbove:      5,
		HighConfidenceAbove: 10,
		OptimizeAbove:       10,
		MinSampleSize:       50,
		MinDataPoints:       2,
		PromotedSplit:       80,
	}
}

// VariantResult is one variant's tallies and derived rates
type VariantResult struct {
	TestName       string  `json:"testName"`
	Variant        string  `json:"variant"`
	Views          int     `json:"views"`
	Clicks         int     `json:"clicks"`
	Conversions    int     `json:"conversions"`
	Total          int     `json:"total"`
	ConversionRate float64 `json:"conversionRate"`
	CTR            float64 `json:"ctr"`
}

// TestResult groups the variants of one test. Winner is nil when fewer than
// two variants have enough data.
type TestResult struct {
	TestName    string          `json:"testName"`
	Variants    []VariantResult `json:"variants"`
	Winner      *VariantResult  `json:"winner,omitempty"`
	Improvement float64         `json:"improvement"`
}

// Recommendation suggests promoting a variant
type Recommendation struct {
	TestName    string  `json:"testName"`
	Variant     string  `json:"variant"`
	Improvement float64 `json:"improvement"`
	Confidence  string  `json:"confidence"`
	Message     string  `json:"message"`
}

// Decision is the auto-optimisation verdict for one test
type Decision struct {
	TestName    string  `json:"testName"`
	Winner      string  `json:"winner,omitempty"`
	Improvement float64 `json:"improvement"`
	SampleSize  int     `json:"sampleSize"`
	Split       int     `json:"split,omitempty"`
	Apply       bool    `json:"apply"`
	Reason      string  `json:"reason"`
}

// Rate returns num/den as a percentage, or 0 when den is 0.
func Rate(num, den int) float64 {
	if den <= 0 {
		return 0
	}
	return round2(float64(num) / float64(den) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Summarize groups aggregation rows by test, derives rates and picks winners.
// Results are ordered by test name, variants by variant id.
func Summarize(rows []models.VariantCounts, p Policy) []TestResult {
	byTest := map[string][]VariantResult{}
	for _, r := range rows {
		total := r.Total
		if total == 0 {
			total = r.Views + r.Clicks + r.Conversions
		}
		byTest[r.TestName] = append(byTest[r.TestName], VariantResult{
			TestName:       r.TestName,
			Variant:        r.Variant,
			Views:          r.Views,
			Clicks:         r.Clicks,
			Conversions:    r.Conversions,
			Total:          total,
			ConversionRate: Rate(r.Conversions, r.Clicks),
			CTR:            Rate(r.Clicks, r.Views),
		})
	}

	names := make([]string, 0, len(byTest))
	for name := range byTest {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]TestResult, 0, len(names))
	for _, name := range names {
		variants := byTest[name]
		sort.Slice(variants, func(i, j int) bool { return variants[i].Variant < variants[j].Variant })
		res := TestResult{TestName: name, Variants: variants}
		res.Winner, res.Improvement = pickWinner(variants, p.MinDataPoints)
		results = append(results, res)
	}
	return results
}

func pickWinner(variants []VariantResult, minDataPoints int) (*VariantResult, float64) {
	eligible := make([]VariantResult, 0, len(variants))
	for _, v := range variants {
		if v.Total >= minDataPoints {
			eligible = append(eligible, v)
		}
	}
	if len(eligible) < 2 {
		return nil, 0
	}

	best, worst := eligible[0], eligible[0]
	for _, v := range eligible[1:] {
		if v.ConversionRate > best.ConversionRate {
			best = v
		}
		if v.ConversionRate < worst.ConversionRate {
			worst = v
		}
	}
	return &best, round2(best.ConversionRate - worst.ConversionRate)
}

// Recommend emits a promotion recommendation for every test whose winner leads
// by more than the policy threshold.
func Recommend(results []TestResult, p Policy) []Recommendation {
	recs := make([]Recommendation, 0)
	for _, r := range results {
		if r.Winner == nil || r.Improvement <= p.RecommendAbove {
			continue
		}
		confidence := ConfidenceMedium
		if r.Improvement > p.HighConfidenceAbove {
			confidence = ConfidenceHigh
		}
		recs = append(recs, Recommendation{
			TestName:    r.TestName,
			Variant:     r.Winner.Variant,
			Improvement: r.Improvement,
			Confidence:  confidence,
			Message: fmt.Sprintf("promote variant %s in %s (+%.2f pp conversion rate)",
				r.Winner.Variant, r.TestName, r.Improvement),
		})
	}
	return recs
}

// Decide returns whether traffic for the test should be skewed to its winner.
func Decide(r TestResult, p Policy) Decision {
	d := Decision{TestName: r.TestName, Improvement: r.Improvement}
	if r.Winner == nil {
		d.Reason = "insufficient data"
		return d
	}
	d.Winner = r.Winner.Variant
	d.SampleSize = r.Winner.Total
	if r.Improvement > p.OptimizeAbove && r.Winner.Total > p.MinSampleSize {
		d.Apply = true
		d.Split = p.PromotedSplit
		d.Reason = fmt.Sprintf("variant %s leads by %.2f pp", r.Winner.Variant, r.Improvement)
		return d
	}
	d.Reason = "insufficient data"
	return d
}
