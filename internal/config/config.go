package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"TraceForge/internal/model"

	"gopkg.in/yaml.v3"
)

// PhaseDef defines a single scheduled traffic phase from the config file.
type PhaseDef struct {
	Label    string `yaml:"label"`
	Duration string `yaml:"duration"`
	Attacker string `yaml:"attacker"`
	Victim   string `yaml:"victim"`
	// Command is the external traffic/flood tool invocation for the phase.
	Command []string `yaml:"command"`
}

// SchedulerConfig holds the configuration for the phase scheduler.
type SchedulerConfig struct {
	Phases []PhaseDef `yaml:"phases"`
	// SettleGap is slept between phases so boundary traffic drains.
	SettleGap string `yaml:"settle_gap"`
	// GraceTimeout bounds how long a finished phase waits for its adapter
	// before killing it.
	GraceTimeout string `yaml:"grace_timeout"`
}

// PacketCollectorConfig configures the live capture probe and its NATS sink.
type PacketCollectorConfig struct {
	Interface   string `yaml:"interface"`
	SnapshotLen int32  `yaml:"snapshot_len"`
	NATSURL     string `yaml:"nats_url"`
	Subject     string `yaml:"subject"`
}

// FlowPollConfig configures the controller flow-statistics poller.
type FlowPollConfig struct {
	ControllerURL string   `yaml:"controller_url"`
	Interval      string   `yaml:"interval"`
	Switches      []string `yaml:"switches"`
}

// CollectorConfig groups the two telemetry collectors.
type CollectorConfig struct {
	Packet   PacketCollectorConfig `yaml:"packet"`
	FlowPoll FlowPollConfig        `yaml:"flow_poll"`
}

// SignatureParams are the per-label parameters of a signature predicate.
type SignatureParams struct {
	VictimIP   string `yaml:"victim_ip"`
	VictimPort uint16 `yaml:"victim_port"`
}

// LabelingConfig configures the post-run labeling pipeline.
type LabelingConfig struct {
	// MaxClockDrift bounds the boundary offset reconciliation will accept
	// between collector clocks and the execution log.
	MaxClockDrift string                     `yaml:"max_clock_drift"`
	Signatures    map[string]SignatureParams `yaml:"signatures"`
}

// ClickHouseConfig holds connection details for the labeled-table writer.
type ClickHouseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// StorageConfig holds output locations for run artifacts.
type StorageConfig struct {
	// RootPath is the directory under which each run gets its own
	// UUID-named subdirectory.
	RootPath   string           `yaml:"root_path"`
	SQLitePath string           `yaml:"sqlite_path"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// APIConfig configures the report/audit HTTP server.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Collector CollectorConfig `yaml:"collector"`
	Labeling  LabelingConfig  `yaml:"labeling"`
	Storage   StorageConfig   `yaml:"storage"`
	API       APIConfig       `yaml:"api"`
}

// LoadConfig reads the configuration from a YAML file and returns a Config struct.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the startup invariants. Configuration errors are the
// only fatal error class, so everything is checked before a run starts.
func (c *Config) Validate() error {
	if len(c.Scheduler.Phases) == 0 {
		return fmt.Errorf("scheduler: at least one phase is required")
	}
	for i, p := range c.Scheduler.Phases {
		label, err := model.ParseLabel(p.Label)
		if err != nil {
			return fmt.Errorf("scheduler: phase %d: %w", i, err)
		}
		d, err := time.ParseDuration(p.Duration)
		if err != nil {
			return fmt.Errorf("scheduler: phase %d: invalid duration: %w", i, err)
		}
		if d <= 0 {
			return fmt.Errorf("scheduler: phase %d: duration must be positive", i)
		}
		if _, ok := c.Labeling.Signatures[string(label)]; !ok {
			return fmt.Errorf("labeling: no signature parameters for declared label %q", label)
		}
	}
	for name, sig := range c.Labeling.Signatures {
		if _, err := model.ParseLabel(name); err != nil {
			return fmt.Errorf("labeling: signatures: %w", err)
		}
		if sig.VictimIP != "" && net.ParseIP(sig.VictimIP) == nil {
			return fmt.Errorf("labeling: signature %q: invalid victim_ip %q", name, sig.VictimIP)
		}
	}
	if _, err := c.MaxClockDrift(); err != nil {
		return err
	}
	if _, err := c.SettleGap(); err != nil {
		return err
	}
	if _, err := c.GraceTimeout(); err != nil {
		return err
	}
	if _, err := c.PollInterval(); err != nil {
		return err
	}
	return nil
}

// MaxClockDrift returns the parsed drift bound, defaulting to 25s, which
// covers the 5-22s collector clock drift observed in practice.
func (c *Config) MaxClockDrift() (time.Duration, error) {
	return parseDuration(c.Labeling.MaxClockDrift, 25*time.Second, "labeling.max_clock_drift")
}

// SettleGap returns the parsed inter-phase gap, defaulting to 5s.
func (c *Config) SettleGap() (time.Duration, error) {
	return parseDuration(c.Scheduler.SettleGap, 5*time.Second, "scheduler.settle_gap")
}

// GraceTimeout returns the parsed adapter grace timeout, defaulting to 10s.
func (c *Config) GraceTimeout() (time.Duration, error) {
	return parseDuration(c.Scheduler.GraceTimeout, 10*time.Second, "scheduler.grace_timeout")
}

// PollInterval returns the parsed flow polling interval, defaulting to 5s.
func (c *Config) PollInterval() (time.Duration, error) {
	return parseDuration(c.Collector.FlowPoll.Interval, 5*time.Second, "collector.flow_poll.interval")
}

func parseDuration(s string, def time.Duration, field string) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: duration must be positive", field)
	}
	return d, nil
}

// BuildPhases converts the phase definitions into scheduler phases with
// ordinal ids assigned.
func (c *Config) BuildPhases() ([]model.Phase, error) {
	phases := make([]model.Phase, 0, len(c.Scheduler.Phases))
	for i, def := range c.Scheduler.Phases {
		label, err := model.ParseLabel(def.Label)
		if err != nil {
			return nil, err
		}
		d, err := time.ParseDuration(def.Duration)
		if err != nil {
			return nil, err
		}
		phases = append(phases, model.Phase{
			ID:              i,
			Label:           label,
			AttackerID:      def.Attacker,
			VictimID:        def.Victim,
			PlannedDuration: d,
		})
	}
	return phases, nil
}
