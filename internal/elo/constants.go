package elo

// Rating system parameters for pickup basketball.
const (
	// InitialRating is assigned to every new player.
	InitialRating = 1500.0

	// DefaultKFactor bounds how far a single game can move a rating.
	// 20 keeps ratings responsive without letting one upset dominate.
	DefaultKFactor = 20.0

	// Divisor sets the rating scale: a 400 point gap gives the favorite
	// an expected score of ~0.91.
	Divisor = 400.0

	// Base is the exponent base of the expected score formula.
	Base = 10.0

	// MinRating and MaxRating clamp every updated rating.
	MinRating = 100.0
	MaxRating = 3000.0

	// MaxRatingChange caps the raw change of one game before clamping.
	MaxRatingChange = 50.0

	// FavoriteThreshold is the smallest average gap for which a team is
	// reported as favored.
	FavoriteThreshold = 50.0
)
