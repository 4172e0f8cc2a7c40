// Package models defines the domain records shared by the repositories,
// the resource pool, the orchestrator and the batch runner.
package models

// Status is the lifecycle state of one account.
type Status string

const (
	StatusNotLoggedIn Status = "NOT_LOGGED_IN"
	StatusLinkReady   Status = "LINK_READY"
	StatusVerified    Status = "VERIFIED"
	StatusSubscribed  Status = "SUBSCRIBED"
	StatusIneligible  Status = "INELIGIBLE"
	StatusError       Status = "ERROR"
)

// ReportSubscribedEnhanced is how a subscribed account with the enhanced
// flag appears in stats and outcomes. It is never stored as a status.
const ReportSubscribedEnhanced = "SUBSCRIBED_ENHANCED"

// Terminal reports whether no further pass can change s.
func (s Status) Terminal() bool {
	return s == StatusSubscribed || s == StatusIneligible
}

// Report returns the name used in stats for s, folding in the enhanced flag.
func (s Status) Report(enhanced bool) string {
	if s == StatusSubscribed && enhanced {
		return ReportSubscribedEnhanced
	}
	return string(s)
}
