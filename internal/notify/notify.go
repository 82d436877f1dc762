// Package notify distributes job lifecycle events to interested listeners.
// Publishing is fire-and-forget: a slow or absent consumer never blocks or
// fails the job that produced the event.
package notify

import (
	"encoding/json"
	"fmt"
	"time"
)

// Notifier publishes a payload to a topic. Implementations must not block
// and must not surface delivery errors to callers.
type Notifier interface {
	Publish(topic string, payload any)
	Close() error
}

// JobTopic is the per-job event channel.
func JobTopic(jobID string) string {
	return "job:" + jobID
}

// CompanyErrorTopic carries enrichment failures scoped to a company.
func CompanyErrorTopic(companyID string) string {
	return fmt.Sprintf("company:%s:error", companyID)
}

// JobEvent is the payload published on job lifecycle transitions.
type JobEvent struct {
	JobID     string          `json:"jobId"`
	CompanyID string          `json:"companyId"`
	Status    string          `json:"status"`
	Progress  int             `json:"progress,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	At        time.Time       `json:"at"`
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) Publish(string, any) {}
func (NopNotifier) Close() error        { return nil }

// Multi fans every publish out to all ns.
func Multi(ns ...Notifier) Notifier {
	return multiNotifier(ns)
}

type multiNotifier []Notifier

func (m multiNotifier) Publish(topic string, payload any) {
	for _, n := range m {
		n.Publish(topic, payload)
	}
}

func (m multiNotifier) Close() error {
	var firstErr error
	for _, n := range m {
		if err := n.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
