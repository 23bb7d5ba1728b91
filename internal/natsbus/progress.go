package natsbus

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/Iron-Ham/fanout/internal/logging"
	"github.com/Iron-Ham/fanout/internal/progress"
)

// ProgressPublisher publishes agent progress on TopicProgress.
type ProgressPublisher struct {
	client *Client
}

func NewProgressPublisher(client *Client) *ProgressPublisher {
	return &ProgressPublisher{client: client}
}

// Publish sends p on its agent's progress subject.
func (p *ProgressPublisher) Publish(ap progress.AgentProgress) error {
	return p.client.PublishJSON(TopicProgress(ap.AgentID), ap)
}

// ProgressSource keeps the latest report from every agent publishing on
// ProgressWildcard. It implements progress.Source.
type ProgressSource struct {
	logger *logging.Logger

	mu       sync.RWMutex
	latest   map[string]progress.AgentProgress
	sub      *nats.Subscription
	onChange func([]progress.AgentProgress)
}

// NewProgressSource subscribes to every agent's progress subject.
func NewProgressSource(client *Client, logger *logging.Logger) (*ProgressSource, error) {
	s := &ProgressSource{
		logger: logging.OrNop(logger),
		latest: make(map[string]progress.AgentProgress),
	}
	sub, err := client.Subscribe(ProgressWildcard, s.handle)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", ProgressWildcard, err)
	}
	s.sub = sub
	if err := client.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("flush subscription: %w", err)
	}
	return s, nil
}

// SetChangeCallback registers cb to receive the snapshot after every
// report.
func (s *ProgressSource) SetChangeCallback(cb func([]progress.AgentProgress)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = cb
}

func (s *ProgressSource) handle(msg *nats.Msg) {
	var ap progress.AgentProgress
	if err := json.Unmarshal(msg.Data, &ap); err != nil || ap.AgentID == "" {
		s.logger.Warn("ignoring malformed progress report", "subject", msg.Subject)
		return
	}
	s.mu.Lock()
	s.latest[ap.AgentID] = ap
	cb := s.onChange
	s.mu.Unlock()
	if cb != nil {
		cb(s.Snapshot())
	}
}

// Snapshot returns the latest report per agent ordered by agent ID.
func (s *ProgressSource) Snapshot() []progress.AgentProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]progress.AgentProgress, 0, len(s.latest))
	for _, ap := range s.latest {
		out = append(out, ap)
	}
	slices.SortFunc(out, func(a, b progress.AgentProgress) int {
		return cmp.Compare(a.AgentID, b.AgentID)
	})
	return out
}

// Close stops listening.
func (s *ProgressSource) Close() error {
	return s.sub.Unsubscribe()
}
