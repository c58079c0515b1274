// Package mqtt publishes daemon and device status to an MQTT broker.
//
// The daemon is a status producer only: it publishes a retained JSON
// envelope to a single configurable topic whenever device state
// changes, and configures a Last Will so the broker announces an
// ungraceful daemon exit. There is no command path over MQTT.
//
// The package is optional; the daemon runs without it when mqtt.enabled
// is false in config.yaml.
package mqtt
