// SPDX-License-Identifier: GPL-3.0

// Package config loads and validates the simulator's hierarchical YAML
// configuration (§6).
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration tree, abridged per §6.
type Config struct {
	Simulation Simulation `yaml:"simulation"`
	Network    Network    `yaml:"network"`
	Device     Device     `yaml:"device"`
	Traffic    Traffic    `yaml:"traffic"`
	Protocols  Protocols  `yaml:"protocols"`
	Metrics    Metrics    `yaml:"metrics"`
	Gateway    Gateway    `yaml:"gateway"`
}

// Simulation holds the top-level run parameters.
type Simulation struct {
	DurationHours float64 `yaml:"duration_hours"`
	WarmupHours   float64 `yaml:"warmup_hours"`
	TimeStepMs    int     `yaml:"time_step_ms"`
	Seed          int64   `yaml:"seed"`
}

// Network describes the radio/network topology.
type Network struct {
	Type        string      `yaml:"type"` // lorawan | nbiot
	NumDevices  int         `yaml:"num_devices"`
	NumGateways int         `yaml:"num_gateways"`
	LoRaWAN     LoRaWANNet  `yaml:"lorawan"`
	NBIoT       NBIoTNet    `yaml:"nbiot"`
}

// LoRaWANNet is the long-range channel's configuration.
type LoRaWANNet struct {
	DutyCycle        float64 `yaml:"duty_cycle"`
	SpreadingFactors []int   `yaml:"spreading_factors"`
	RX1DelayMs       int     `yaml:"rx1_delay_ms"`
	RX2DelayMs       int     `yaml:"rx2_delay_ms"`
	Region           string  `yaml:"region"`
}

// NBIoTNet is the narrow-band channel's configuration.
type NBIoTNet struct {
	CarrierFreqMHz float64 `yaml:"carrier_freq_mhz"`
	UECategory     string  `yaml:"ue_category"`
	PSMEnabled     bool    `yaml:"psm_enabled"`
}

// Device holds per-device power-model configuration.
type Device struct {
	Power Power `yaml:"power"`
}

// Power is the power-model table (§4.7).
type Power struct {
	SleepMw    float64         `yaml:"sleep"`
	IdleMw     float64         `yaml:"idle"`
	RxMw       float64         `yaml:"rx"`
	TxDbmToMw  map[int]float64 `yaml:"tx_dbm_to_mw"`
}

// Traffic configures uplink and downlink generation (§4.11).
type Traffic struct {
	Uplink   UplinkTraffic   `yaml:"uplink"`
	Downlink DownlinkTraffic `yaml:"downlink"`
}

// UplinkTraffic configures the per-device uplink pattern.
type UplinkTraffic struct {
	Pattern      string  `yaml:"pattern"` // periodic | poisson | event_driven
	IntervalS    float64 `yaml:"interval_s"`
	PayloadBytes int     `yaml:"payload_bytes"`
	JitterRatio  float64 `yaml:"jitter_ratio"`
}

// DownlinkTraffic configures downlink command generation.
type DownlinkTraffic struct {
	Pattern            string             `yaml:"pattern"` // uniform | bursty | scheduled
	MeanRatePerHour    float64            `yaml:"mean_rate_per_hour"`
	PayloadBytes       int                `yaml:"payload_bytes"`
	PriorityDistribution PriorityWeights  `yaml:"priority_distribution"`
}

// PriorityWeights is the command priority distribution.
type PriorityWeights struct {
	Critical   float64 `yaml:"critical"`
	Normal     float64 `yaml:"normal"`
	BestEffort float64 `yaml:"best_effort"`
}

// Protocols enables/configures each of the three protocols under test.
type Protocols struct {
	Novel     NovelProtocolConfig `yaml:"novel_lpwan"`
	CompactPS BaselineConfig      `yaml:"compact_ps"`
	ReqResp   BaselineConfig      `yaml:"req_resp"`
}

// NovelProtocolConfig configures the NOVEL codec and QoS-D classes.
type NovelProtocolConfig struct {
	Enabled        bool         `yaml:"enabled"`
	TokenSizeBytes int          `yaml:"token_size_bytes"`
	HeaderSizeBytes int         `yaml:"header_size_bytes"`
	AckWindowSize  int          `yaml:"ack_window_size"`
	AckBaseBits    int          `yaml:"ack_base_bits"`
	EpochBits      int          `yaml:"epoch_bits"`
	CmdTypes       int          `yaml:"cmd_types"`
	QoSClasses     []QoSClass   `yaml:"qos_classes"`
}

// QoSClass is one QoS-D class entry as read from YAML.
type QoSClass struct {
	Name        string  `yaml:"name"`
	Probability float64 `yaml:"probability"`
	DeadlineS   float64 `yaml:"deadline_s"`
	Retries     int     `yaml:"retries"`
}

// BaselineConfig enables a baseline protocol.
type BaselineConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Metrics configures the metrics collector.
type Metrics struct {
	Enabled         bool `yaml:"enabled"`
	CollectIntervalS int `yaml:"collect_interval_s"`
}

// Gateway configures the gateway's scheduler and MQTT bridge stub.
type Gateway struct {
	QueueSize   int              `yaml:"queue_size"`
	Scheduler   string           `yaml:"scheduler"`
	MqttBridge  MqttBridge       `yaml:"mqtt_bridge"`
}

// MqttBridge configures the simulated (logging-only) MQTT forward path.
type MqttBridge struct {
	Enabled    bool           `yaml:"enabled"`
	QosMapping map[string]int `yaml:"qos_mapping"`
}

// Default returns a Config with every field defaulted, mirroring the
// reference implementation's config.get(key, default) idiom.
func Default() *Config {
	return &Config{
		Simulation: Simulation{DurationHours: 1, WarmupHours: 0, TimeStepMs: 1000, Seed: 1},
		Network: Network{
			Type: "lorawan", NumDevices: 10, NumGateways: 1,
			LoRaWAN: LoRaWANNet{DutyCycle: 0.01, SpreadingFactors: []int{7, 8, 9, 10, 11, 12}, RX1DelayMs: 1000, RX2DelayMs: 2000, Region: "EU868"},
			NBIoT:   NBIoTNet{CarrierFreqMHz: 900, UECategory: "cat-nb1", PSMEnabled: true},
		},
		Device: Device{Power: Power{SleepMw: 0.001, IdleMw: 1.0, RxMw: 12.0, TxDbmToMw: map[int]float64{14: 80}}},
		Traffic: Traffic{
			Uplink:   UplinkTraffic{Pattern: "periodic", IntervalS: 600, PayloadBytes: 20, JitterRatio: 0.1},
			Downlink: DownlinkTraffic{Pattern: "uniform", MeanRatePerHour: 2, PayloadBytes: 8, PriorityDistribution: PriorityWeights{Critical: .05, Normal: .25, BestEffort: .70}},
		},
		Protocols: Protocols{
			Novel: NovelProtocolConfig{
				Enabled: true, TokenSizeBytes: 12, HeaderSizeBytes: 5, AckWindowSize: 16, AckBaseBits: 16, EpochBits: 8, CmdTypes: 8,
				QoSClasses: []QoSClass{
					{"critical", .99, 60, 3},
					{"normal", .90, 3600, 2},
					{"best_effort", .50, 86400, 0},
				},
			},
			CompactPS: BaselineConfig{Enabled: true},
			ReqResp:   BaselineConfig{Enabled: true},
		},
		Metrics: Metrics{Enabled: true, CollectIntervalS: 60},
		Gateway: Gateway{QueueSize: 1000, Scheduler: "priority_deadline", MqttBridge: MqttBridge{Enabled: false}},
	}
}

// Load reads and validates a Config from path, applying defaults for any
// field left unset in the YAML document.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config: read")
	}
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "config: parse")
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "config: validate")
	}
	return c, nil
}

// Validate checks the required fields enumerated in §7(a).
func (c *Config) Validate() error {
	if c.Simulation.DurationHours <= 0 {
		return errors.New("simulation.duration_hours must be > 0")
	}
	if c.Network.NumDevices <= 0 {
		return errors.New("network.num_devices must be > 0")
	}
	if c.Network.Type != "lorawan" && c.Network.Type != "nbiot" {
		return errors.Errorf("network.type must be lorawan or nbiot, got %q", c.Network.Type)
	}
	if !c.Protocols.Novel.Enabled && !c.Protocols.CompactPS.Enabled && !c.Protocols.ReqResp.Enabled {
		return errors.New("at least one protocol must be enabled")
	}
	return nil
}
