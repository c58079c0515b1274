// Package config loads daemon configuration from a YAML file with
// environment variable overrides (DECKD_* prefix). Defaults apply for
// any value not set in the file or environment, and Load validates the
// merged result before returning it.
package config
