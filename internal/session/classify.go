package session

import "strings"

// Keyword lists are matched case-insensitively against the page text after
// whitespace is collapsed.
var (
	errorKeywords = []string{
		"something went wrong",
		"an error occurred",
		"unexpected error",
		"please try again later",
		"service unavailable",
	}
	enhancedKeywords = []string{
		"enhanced plan active",
		"enhanced subscription",
		"enhanced membership",
	}
	subscribedKeywords = []string{
		"subscription active",
		"you're subscribed",
		"you are subscribed",
		"manage subscription",
	}
	ineligibleKeywords = []string{
		"not eligible",
		"ineligible",
		"offer is no longer available",
	}
	verifiedKeywords = []string{
		"verification complete",
		"you've been verified",
		"you have been verified",
		"add a payment method",
	}
	linkReadyKeywords = []string{
		"verify your eligibility",
		"get verified",
		"start verification",
		"verificationid=",
	}
)

// Classify maps raw page text to a DetectedStatus.
// Priority: error > subscribed_enhanced > subscribed > ineligible > verified > link_ready.
// Text matching nothing is DetectedUnknown.
func Classify(pageText string) DetectedStatus {
	clean := strings.ToLower(strings.Join(strings.Fields(pageText), " "))

	switch {
	case containsAny(clean, errorKeywords):
		return DetectedError
	case containsAny(clean, enhancedKeywords):
		return DetectedSubscribedEnhanced
	case containsAny(clean, subscribedKeywords):
		return DetectedSubscribed
	case containsAny(clean, ineligibleKeywords):
		return DetectedIneligible
	case containsAny(clean, verifiedKeywords):
		return DetectedVerified
	case containsAny(clean, linkReadyKeywords):
		return DetectedLinkReady
	default:
		return DetectedUnknown
	}
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
