package coordination

import (
	"context"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"gorm.io/gorm"

	"github.com/txkafka/txkafka/pkg/kafkabroker"
	"github.com/txkafka/txkafka/pkg/logger"
	"github.com/txkafka/txkafka/pkg/resilience"
)

// ExclusiveConfig tunes ExclusiveNode's leader election (spec.md §4.6).
type ExclusiveConfig struct {
	Brokers []string

	TopicName         string
	GroupID           string
	HeartbeatInterval time.Duration
	SessionTimeout    time.Duration
	ReplicationFactor int16
	AutoCreateTopic   bool
}

func (c *ExclusiveConfig) applyDefaults() {
	if c.TopicName == "" {
		c.TopicName = "__k_outbox_exclusive"
	}
	if c.GroupID == "" {
		c.GroupID = "k-outbox-exclusive"
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 3 * time.Second
	}
	if c.SessionTimeout == 0 {
		c.SessionTimeout = 30 * time.Second
	}
	if c.ReplicationFactor == 0 {
		c.ReplicationFactor = 1
	}
}

// Validate enforces spec.md §4.6's required invariant.
func (c *ExclusiveConfig) Validate() error {
	if c.HeartbeatInterval >= c.SessionTimeout {
		return errConfigInvalid("ExclusiveConfig.HeartbeatInterval must be less than SessionTimeout")
	}
	return nil
}

// ExclusiveNode elects exactly one leader among candidate processes by
// racing for the single partition of a coordination topic (spec.md §4.6).
// Only the leader's Scope returns a usable query; every other node leaves
// the outbox table untouched.
type ExclusiveNode struct {
	cfg ExclusiveConfig

	mu       sync.RWMutex
	isLeader bool

	cancel context.CancelFunc
	group  sarama.ConsumerGroup
}

// NewExclusiveNode joins the coordination consumer group and starts the
// background poll/heartbeat loops. producer is used only to keep the
// group's heartbeat topic active; admin auto-creates the coordination
// topic when cfg.AutoCreateTopic is set.
func NewExclusiveNode(cfg ExclusiveConfig, producer kafkabroker.ProducerClient, admin kafkabroker.AdminClient) (*ExclusiveNode, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.AutoCreateTopic && admin != nil {
		spec := []kafkabroker.TopicSpec{{Name: cfg.TopicName, NumPartitions: 1, ReplicationFactor: cfg.ReplicationFactor}}
		createErr := resilience.Retry(context.Background(), resilience.DefaultRetryConfig(), func(ctx context.Context) error {
			return admin.CreateTopics(ctx, spec, 10*time.Second)
		})
		if createErr != nil {
			logger.L().Warn("failed to auto-create coordination topic, assuming it already exists", "topic", cfg.TopicName, "error", createErr)
		}
	}

	scfg := sarama.NewConfig()
	scfg.Version = sarama.V2_8_0_0
	scfg.Consumer.Group.Heartbeat.Interval = cfg.HeartbeatInterval
	scfg.Consumer.Group.Session.Timeout = cfg.SessionTimeout

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, scfg)
	if err != nil {
		return nil, errCoordinationLost(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	node := &ExclusiveNode{cfg: cfg, cancel: cancel, group: group}

	go node.runConsumeLoop(ctx)
	if producer != nil {
		go node.runHeartbeatLoop(ctx, producer)
	}

	return node, nil
}

func (n *ExclusiveNode) runConsumeLoop(ctx context.Context) {
	handler := &leaderHandler{node: n}
	for {
		if ctx.Err() != nil {
			return
		}
		if err := n.group.Consume(ctx, []string{n.cfg.TopicName}, handler); err != nil {
			logger.L().ErrorContext(ctx, "coordination consumer group session ended", "error", err)
		}
	}
}

func (n *ExclusiveNode) runHeartbeatLoop(ctx context.Context, producer kafkabroker.ProducerClient) {
	ticker := time.NewTicker(n.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !n.IsLeader() {
				continue
			}
			_ = producer.Produce(n.cfg.TopicName, nil, false, []byte("heartbeat"), nil, nil)
		}
	}
}

func (n *ExclusiveNode) setLeader(v bool) {
	n.mu.Lock()
	n.isLeader = v
	n.mu.Unlock()
}

// IsLeader reports whether this node currently holds the coordination
// topic's single partition.
func (n *ExclusiveNode) IsLeader() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.isLeader
}

// Scope implements Strategy: only the current leader gets a usable query.
func (n *ExclusiveNode) Scope(db *gorm.DB) (*gorm.DB, bool) {
	if !n.IsLeader() {
		return nil, false
	}
	return db, true
}

// Close cancels the election loops and leaves the consumer group.
func (n *ExclusiveNode) Close() error {
	n.cancel()
	return n.group.Close()
}

// leaderHandler tracks partition assignment/revocation as leadership
// transitions (spec.md §4.6). Setup/Cleanup run on every group member at
// each rebalance, not only the member that owns the topic's single
// partition, so leadership must be read from the member's actual claims.
// ConsumeClaim has no business meaning here; it only drains whatever
// heartbeat records arrive.
type leaderHandler struct {
	node *ExclusiveNode
}

func (h *leaderHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.node.setLeader(len(session.Claims()[h.node.cfg.TopicName]) > 0)
	return nil
}

func (h *leaderHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.node.setLeader(false)
	return nil
}

func (h *leaderHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for range claim.Messages() {
	}
	return nil
}
