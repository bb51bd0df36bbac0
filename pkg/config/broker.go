package config

import "time"

// BrokerConfig is the process-wide, environment-loadable half of the
// library's configuration: connection details and coordination tuning that
// don't vary per message type. Load it with config.Load[BrokerConfig](&cfg).
type BrokerConfig struct {
	Brokers  []string `env:"TXKAFKA_BROKERS" env-separator:"," env-required:"true"`
	ClientID string   `env:"TXKAFKA_CLIENT_ID" env-default:"txkafka"`

	AutoCreateTopics bool `env:"TXKAFKA_AUTO_CREATE_TOPICS" env-default:"true"`

	// ExclusiveCoordination selects between running every process as an
	// outbox-draining peer (false, the SingleNode strategy) and electing
	// exactly one leader among replicas via CoordinationTopic (true, the
	// ExclusiveNode strategy). Multi-replica deployments set this to avoid
	// every replica racing to dispatch the same row (spec.md §4.6).
	ExclusiveCoordination bool `env:"TXKAFKA_EXCLUSIVE_COORDINATION" env-default:"false"`

	CoordinationTopic             string        `env:"TXKAFKA_COORDINATION_TOPIC" env-default:"__k_outbox_exclusive"`
	CoordinationGroupID           string        `env:"TXKAFKA_COORDINATION_GROUP_ID" env-default:"k-outbox-exclusive"`
	CoordinationHeartbeatInterval time.Duration `env:"TXKAFKA_COORDINATION_HEARTBEAT_INTERVAL" env-default:"3s"`
	CoordinationSessionTimeout    time.Duration `env:"TXKAFKA_COORDINATION_SESSION_TIMEOUT" env-default:"30s"`

	OutboxPollingInterval time.Duration `env:"TXKAFKA_OUTBOX_POLLING_INTERVAL" env-default:"1s"`
	OutboxMaxRowsPerTick  int           `env:"TXKAFKA_OUTBOX_MAX_ROWS_PER_TICK" env-default:"100" validate:"gt=0"`

	ShutdownDrainTimeout time.Duration `env:"TXKAFKA_SHUTDOWN_DRAIN_TIMEOUT" env-default:"5s"`
}

// Validate checks invariants that struct tags alone can't express (spec.md
// §4.6: HeartbeatInterval < SessionTimeout).
func (c *BrokerConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return errConfigInvalid("at least one broker address is required")
	}
	if c.OutboxPollingInterval <= 0 {
		return errConfigInvalid("OutboxPollingInterval must be > 0")
	}
	if c.OutboxMaxRowsPerTick <= 0 {
		return errConfigInvalid("OutboxMaxRowsPerTick must be > 0")
	}
	if c.CoordinationHeartbeatInterval >= c.CoordinationSessionTimeout {
		return errConfigInvalid("CoordinationHeartbeatInterval must be less than CoordinationSessionTimeout")
	}
	return nil
}
