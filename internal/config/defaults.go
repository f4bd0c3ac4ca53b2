package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultBusURL         = "nats://127.0.0.1:4222"
	DefaultDemandQueue    = "crypto_currency_ms"
	DefaultListingSubject = "crypto_currency_ms_listing"
	DefaultErrorSubject   = "crypto_currency_ms_err"
	DefaultListenAddr     = ":8080"
	DefaultWSPath         = "/api/v1/ws"
	DefaultSendBuffer     = 256
	DefaultWriteTimeout   = 2 * time.Second
	DefaultPongTimeout    = 60 * time.Second
	DefaultSnapshotTO     = 30 * time.Second
)

func (c *Config) applyDefaults() {
	if c.Bus.URL == "" {
		c.Bus.URL = DefaultBusURL
	}
	if c.Bus.DemandQueue == "" {
		c.Bus.DemandQueue = DefaultDemandQueue
	}
	if c.Bus.ListingSubject == "" {
		c.Bus.ListingSubject = DefaultListingSubject
	}
	if c.Bus.ErrorSubject == "" {
		c.Bus.ErrorSubject = DefaultErrorSubject
	}

	if c.Gateway.ListenAddr == "" {
		c.Gateway.ListenAddr = DefaultListenAddr
	}
	if c.Gateway.WSPath == "" {
		c.Gateway.WSPath = DefaultWSPath
	}
	if c.Gateway.SendBuffer == 0 {
		c.Gateway.SendBuffer = DefaultSendBuffer
	}
	if c.Gateway.WriteTimeout == 0 {
		c.Gateway.WriteTimeout = DefaultWriteTimeout
	}
	if c.Gateway.PongTimeout == 0 {
		c.Gateway.PongTimeout = DefaultPongTimeout
	}

	if c.Controller.SnapshotTimeout == 0 {
		c.Controller.SnapshotTimeout = DefaultSnapshotTO
	}
}
