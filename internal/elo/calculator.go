// Package elo implements the ELO rating engine used to rate pickup games.
//
// The engine is a set of pure functions over plain values. It never
// performs I/O and keeps no state between calls, so any number of
// calculations may run concurrently.
package elo

import (
	"fmt"
	"math"
)

// ExpectedScore returns the probability that a side rated ratingA beats a
// side rated ratingB:
//
//	E_A = 1 / (1 + 10^((ratingB - ratingA) / 400))
//
// ExpectedScore(a, b) + ExpectedScore(b, a) is exactly 1.
func ExpectedScore(ratingA, ratingB float64) (float64, error) {
	if err := checkRating("ratingA", ratingA); err != nil {
		return 0, err
	}
	if err := checkRating("ratingB", ratingB); err != nil {
		return 0, err
	}

	// The favorite's score is >= 0.5, so 1 - x is exact for the underdog
	// and the pair always sums to 1.
	if ratingA >= ratingB {
		return expected(ratingA, ratingB), nil
	}
	return 1 - expected(ratingB, ratingA), nil
}

func expected(ratingA, ratingB float64) float64 {
	exponent := (ratingB - ratingA) / Divisor
	return 1 / (1 + math.Pow(Base, exponent))
}

// NewRating applies one game result to currentRating.
//
// The raw change kFactor*(actualScore-expectedScore) is capped at
// ±opts.MaxRatingChange, the resulting rating is clamped to
// [opts.MinRating, opts.MaxRating] and rounded to two decimals.
// actualScore must be 0 (loss), 0.5 (draw) or 1 (win). Options whose bounds
// contradict each other are rejected.
func NewRating(currentRating, expectedScore, actualScore, kFactor float64, opts Options) (float64, error) {
	if !isFinite(currentRating) {
		return 0, invalid("currentRating", currentRating, "must be a finite number")
	}
	if !isFinite(expectedScore) || expectedScore < 0 || expectedScore > 1 {
		return 0, invalid("expectedScore", expectedScore, "must be between 0 and 1")
	}
	if !validScore(actualScore) {
		return 0, invalid("actualScore", actualScore, "must be 0 (loss), 0.5 (draw) or 1 (win)")
	}
	if !isFinite(kFactor) || kFactor <= 0 {
		return 0, invalid("kFactor", kFactor, "must be a positive number")
	}

	limits, err := opts.Resolve()
	if err != nil {
		return 0, err
	}

	change := kFactor * (actualScore - expectedScore)
	if math.Abs(change) > limits.MaxRatingChange {
		change = math.Copysign(limits.MaxRatingChange, change)
	}

	rating := clamp(currentRating+change, limits.MinRating, limits.MaxRating)
	return roundTo(rating, 2), nil
}

// TeamRating returns the mean of playerRatings rounded to two decimals.
func TeamRating(playerRatings []float64) (float64, error) {
	if len(playerRatings) == 0 {
		return 0, invalid("playerRatings", nil, "must not be empty")
	}

	var sum float64
	for i, rating := range playerRatings {
		if err := checkRating(fmt.Sprintf("playerRatings[%d]", i), rating); err != nil {
			return 0, err
		}
		sum += rating
	}

	return roundTo(sum/float64(len(playerRatings)), 2), nil
}

// InitialRatingValue returns the rating assigned to new players.
func InitialRatingValue() float64 {
	return InitialRating
}

// IsValidRating reports whether rating is finite and inside the bounds of
// opts. It never fails; inconsistent options accept no rating.
func IsValidRating(rating float64, opts Options) bool {
	limits, err := opts.Resolve()
	if err != nil {
		return false
	}
	return isFinite(rating) && rating >= limits.MinRating && rating <= limits.MaxRating
}

func checkRating(field string, rating float64) error {
	if !isFinite(rating) {
		return invalid(field, rating, "must be a finite number")
	}
	if rating < 0 {
		return invalid(field, rating, "must be non-negative")
	}
	return nil
}

func validScore(score float64) bool {
	return score == float64(Loss) || score == float64(Draw) || score == float64(Win)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
