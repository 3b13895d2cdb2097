package models

import "time"

// RuleStatus classifies a failover rule's current posture. It is derived
// from ActiveURL and the priority chain, never stored independently.
type RuleStatus string

const (
	RuleStatusIdle       RuleStatus = "idle"
	RuleStatusMonitoring RuleStatus = "monitoring"
	RuleStatusFailedOver RuleStatus = "failed-over"
)

// FailoverRule describes one priority chain of interchangeable addon
// configurations for one account. Exactly one chain member is active at a
// time. Invariant: ActiveURL is a member of PriorityChain or empty.
type FailoverRule struct {
	ID            string    `json:"id"`
	AccountID     string    `json:"accountId"`
	PriorityChain []string  `json:"priorityChain"`
	IsActive      bool      `json:"isActive"`
	IsAutomatic   bool      `json:"isAutomatic"`
	ActiveURL     string    `json:"activeUrl,omitempty"`
	LastFailover  time.Time `json:"lastFailover,omitempty"`
}

// Status derives the rule state: monitoring iff the active member is the
// chain head, failed-over otherwise, idle when nothing is active.
func (r FailoverRule) Status() RuleStatus {
	if r.ActiveURL == "" || len(r.PriorityChain) == 0 {
		return RuleStatusIdle
	}
	if SameTransportURL(r.ActiveURL, r.PriorityChain[0]) {
		return RuleStatusMonitoring
	}
	return RuleStatusFailedOver
}

// ChainContains reports whether url is a member of the priority chain.
func (r FailoverRule) ChainContains(url string) bool {
	for _, member := range r.PriorityChain {
		if SameTransportURL(member, url) {
			return true
		}
	}
	return false
}
