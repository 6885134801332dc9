package config

const (
	// DefaultDatabasePath is the default path for the mirrored SQLite database
	DefaultDatabasePath = "./possync.db"

	// DefaultSquareBaseURL points at the production platform; use
	// https://connect.squareupsandbox.com for sandbox accounts.
	DefaultSquareBaseURL = "https://connect.squareup.com"

	// DefaultSquareAPIVersion pins the response shapes the mappers expect.
	// ListPayments needs it for updated_at_begin_time and sort_field.
	DefaultSquareAPIVersion = "2025-04-16"
)
