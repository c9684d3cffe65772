package biometric

import (
	"fmt"
	"math"
	"time"
)

// Tier is the confidence band a similarity falls into.
type Tier string

const (
	TierHigh     Tier = "high"
	TierStandard Tier = "standard"
	TierSoft     Tier = "soft"
	TierNone     Tier = "none"
)

// Thresholds are the tier boundaries. Soft <= Normal <= Strict.
type Thresholds struct {
	Strict float64
	Normal float64
	Soft   float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{Strict: 0.70, Normal: 0.60, Soft: 0.50}
}

// AdaptivePolicy lowers the normal threshold for attempts outside day hours
// and for repeated attempts. The total reduction is capped at MaxAdjustment
// and the result never drops below the soft tier.
type AdaptivePolicy struct {
	Enabled         bool
	OffHoursPenalty float64
	RetryPenalty    float64
	MaxAdjustment   float64
	DayStartHour    int
	DayEndHour      int
	RetryAfter      int
}

func DefaultAdaptivePolicy() AdaptivePolicy {
	return AdaptivePolicy{
		OffHoursPenalty: 0.05,
		RetryPenalty:    0.03,
		MaxAdjustment:   0.08,
		DayStartHour:    7,
		DayEndHour:      19,
		RetryAfter:      2,
	}
}

// AttemptContext carries the contextual modifiers of one match.
type AttemptContext struct {
	At       time.Time
	Attempts int
}

// Adjustment returns how much to subtract from the normal threshold.
func (p AdaptivePolicy) Adjustment(ac AttemptContext) float64 {
	if !p.Enabled {
		return 0
	}
	var adj float64
	if !ac.At.IsZero() {
		h := ac.At.Hour()
		if h < p.DayStartHour || h > p.DayEndHour {
			adj += p.OffHoursPenalty
		}
	}
	if ac.Attempts > p.RetryAfter {
		adj += p.RetryPenalty
	}
	return math.Min(adj, p.MaxAdjustment)
}

// MatchResult is the tiered decision for one comparison.
type MatchResult struct {
	IsMatch         bool    `json:"is_match"`
	Similarity      float64 `json:"similarity"`
	Tier            Tier    `json:"tier"`
	RequiresReview  bool    `json:"requires_review"`
	NormalThreshold float64 `json:"normal_threshold"`
	Message         string  `json:"message"`
}

// Matcher applies the tiered confidence policy on top of raw similarity.
type Matcher struct {
	thresholds Thresholds
	adaptive   AdaptivePolicy
}

func NewMatcher(t Thresholds, adaptive AdaptivePolicy) *Matcher {
	return &Matcher{thresholds: t, adaptive: adaptive}
}

// EffectiveNormal is the normal threshold after adaptive adjustment.
func (m *Matcher) EffectiveNormal(ac AttemptContext) float64 {
	return math.Max(m.thresholds.Normal-m.adaptive.Adjustment(ac), m.thresholds.Soft)
}

// Match compares a query embedding with a stored one.
func (m *Matcher) Match(query, stored []float64, codeVerified bool, ac AttemptContext) MatchResult {
	return m.Classify(Cosine(query, stored), codeVerified, ac)
}

// Classify maps a similarity to a tier. The soft tier only admits when the
// one-time code for the same attempt has already been verified.
func (m *Matcher) Classify(similarity float64, codeVerified bool, ac AttemptContext) MatchResult {
	normal := m.EffectiveNormal(ac)
	r := MatchResult{Similarity: similarity, Tier: TierNone, NormalThreshold: normal}

	switch {
	case similarity >= m.thresholds.Strict:
		r.IsMatch, r.Tier = true, TierHigh
		r.Message = fmt.Sprintf("high confidence match (%.3f)", similarity)
	case similarity >= normal:
		r.IsMatch, r.Tier = true, TierStandard
		r.Message = fmt.Sprintf("standard match (%.3f)", similarity)
	case similarity >= m.thresholds.Soft && codeVerified:
		r.IsMatch, r.Tier, r.RequiresReview = true, TierSoft, true
		r.Message = fmt.Sprintf("soft match with verified code (%.3f), flagged for review", similarity)
	case similarity >= m.thresholds.Soft:
		r.Message = fmt.Sprintf("soft match (%.3f) requires a verified code", similarity)
	default:
		r.Message = fmt.Sprintf("no match (%.3f)", similarity)
	}
	return r
}

// ConfidenceScore maps a similarity in [0.5, 1] onto 0..100. Anything below
// the soft tier scores 0.
func ConfidenceScore(similarity float64) int {
	if similarity <= 0.5 {
		return 0
	}
	if similarity >= 1 {
		return 100
	}
	return int(math.Round((similarity - 0.5) / 0.5 * 100))
}
