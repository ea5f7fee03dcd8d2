package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryChannel is an in-process DeliveryChannel used in tests and local
// development. It keeps one inbox per subscription so tests can observe
// exactly which subscribers a published message reached.
type MemoryChannel struct {
	mu   sync.RWMutex
	subs map[string]*memorySubscription // keyed by subscription ref

	// Optional error overrides for failure-path tests.
	SetFilterPolicyErr error
	PublishErr         error
}

type memorySubscription struct {
	endpoint string
	policy   *FilterPolicy
	inbox    []Message
}

func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{subs: make(map[string]*memorySubscription)}
}

// Subscribe registers an endpoint and returns an opaque subscription ref.
// Test setup helper; real subscription creation is owned by the directory.
func (c *MemoryChannel) Subscribe(endpoint string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ref := "sub-" + uuid.New().String()
	c.subs[ref] = &memorySubscription{endpoint: endpoint}
	return ref
}

func (c *MemoryChannel) SetFilterPolicy(_ context.Context, ref string, policy FilterPolicy) error {
	if c.SetFilterPolicyErr != nil {
		return c.SetFilterPolicyErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subs[ref]
	if !ok {
		return fmt.Errorf("unknown subscription ref %q", ref)
	}
	p := policy
	sub.policy = &p
	return nil
}

func (c *MemoryChannel) Publish(_ context.Context, msg Message) error {
	if c.PublishErr != nil {
		return c.PublishErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.subs {
		if sub.policy == nil {
			// No policy means no restriction: the subscription receives
			// every published message.
			sub.inbox = append(sub.inbox, msg)
			continue
		}
		if matches(*sub.policy, msg.Attributes) {
			sub.inbox = append(sub.inbox, msg)
		}
	}
	return nil
}

func matches(policy FilterPolicy, attrs map[string]string) bool {
	v, ok := attrs[policy.AttributeKey]
	if !ok {
		return false
	}
	for _, allowed := range policy.AllowedValues {
		if allowed == v {
			return true
		}
	}
	return false
}

// Inbox returns a copy of the messages delivered to a subscription.
func (c *MemoryChannel) Inbox(ref string) []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sub, ok := c.subs[ref]
	if !ok {
		return nil
	}
	out := make([]Message, len(sub.inbox))
	copy(out, sub.inbox)
	return out
}

// Policy returns the current filter policy of a subscription, or nil.
func (c *MemoryChannel) Policy(ref string) *FilterPolicy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sub, ok := c.subs[ref]
	if !ok || sub.policy == nil {
		return nil
	}
	p := *sub.policy
	return &p
}

var _ DeliveryChannel = (*MemoryChannel)(nil)
