package tts

import "log/slog"

// speedFactor maps a rate percentage onto a playback speed multiplier and
// clamps it into the provider's accepted range, logging when it had to.
func speedFactor(logger *slog.Logger, provider string, rate string, min, max float64) (float64, error) {
	percent, err := ParseRate(rate)
	if err != nil {
		return 0, err
	}
	speed := 1 + float64(percent)/100
	clamped := speed
	if clamped < min {
		clamped = min
	}
	if clamped > max {
		clamped = max
	}
	if clamped != speed {
		logger.Warn("speech rate clamped to provider range",
			slog.String("provider", provider),
			slog.String("requested_rate", rate),
			slog.Float64("requested_speed", speed),
			slog.Float64("applied_speed", clamped))
	}
	return clamped, nil
}
