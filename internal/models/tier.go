// CamFlix Recommender - Collaborative Filtering Batch Engine
// Copyright 2026 CamFlix
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/camflix/recommender

package models

// Tier is the percentile bucket of a rating within the rater's own history.
// A score of 85 from a harsh critic can land in a higher tier than the same
// score from someone who rates everything above 80.
type Tier string

const (
	TierTerrible Tier = "terrible"
	TierBad      Tier = "bad"
	TierMediocre Tier = "mediocre"
	TierDecent   Tier = "decent"
	TierGood     Tier = "good"
	TierGreat    Tier = "great"
	TierSuperb   Tier = "superb"
)

// Valid reports whether t is one of the seven defined tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierTerrible, TierBad, TierMediocre, TierDecent, TierGood, TierGreat, TierSuperb:
		return true
	default:
		return false
	}
}

// ComputeTier classifies score against the rater's full score history.
//
// The percentile is the fraction of prior scores strictly below the new
// score, mapped through fixed breakpoints:
//
//	< 10%  terrible
//	< 30%  bad
//	< 50%  mediocre
//	< 70%  decent
//	< 85%  good
//	< 95%  great
//	else   superb
//
// A rater with no history defaults to decent.
//
// This is a pure function: callers pass the history explicitly and persist
// the result themselves. Tier is never recomputed as a persistence side
// effect.
func ComputeTier(score int, history []int) Tier {
	if len(history) == 0 {
		return TierDecent
	}

	below := 0
	for _, s := range history {
		if s < score {
			below++
		}
	}
	percentile := float64(below) / float64(len(history)) * 100

	switch {
	case percentile < 10:
		return TierTerrible
	case percentile < 30:
		return TierBad
	case percentile < 50:
		return TierMediocre
	case percentile < 70:
		return TierDecent
	case percentile < 85:
		return TierGood
	case percentile < 95:
		return TierGreat
	default:
		return TierSuperb
	}
}
