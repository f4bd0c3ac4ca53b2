package config

import "time"

// Config is the root configuration shared by the gateway and controller
// binaries.
type Config struct {
	Bus        BusConfig        `yaml:"bus"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Controller ControllerConfig `yaml:"controller"`
}

// BusConfig holds the pub/sub transport settings. The demand queue carries
// gateway → controller demand messages; listing and error subjects carry the
// controller's listing and error publications.
type BusConfig struct {
	URL            string `yaml:"url"`
	DemandQueue    string `yaml:"demand_queue"`
	ListingSubject string `yaml:"listing_subject"`
	ErrorSubject   string `yaml:"error_subject"`
}

// GatewayConfig holds the client-facing websocket server settings.
type GatewayConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	WSPath       string        `yaml:"ws_path"`
	SendBuffer   int           `yaml:"send_buffer"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PongTimeout  time.Duration `yaml:"pong_timeout"`
}

// ControllerConfig holds the demand multiplexer settings.
type ControllerConfig struct {
	// Exchanges enables connectors by name. Empty means all known.
	Exchanges []string `yaml:"exchanges"`
	// ListingRefresh is a cron spec (with seconds) for periodic listing
	// recomputation. Empty disables the schedule.
	ListingRefresh  string        `yaml:"listing_refresh"`
	SnapshotTimeout time.Duration `yaml:"snapshot_timeout"`
}
