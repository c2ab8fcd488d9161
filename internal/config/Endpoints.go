package config

import (
	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// FeedAPI is the base URL of the external reference price feed.
	FeedAPI string
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	var err error

	FeedAPI, err = getEnv("FEED_API")
	if err != nil {
		return err
	}

	log.Debug().
		Str("FeedAPI", FeedAPI).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
