package kyc

import (
	"strings"

	"github.com/cradoe/fundsrail/internal/apperr"
	"golang.org/x/text/cases"
)

// Provider-side KYC statuses reported by the bank-link provider
const (
	StatusApproved        = "approved"
	StatusSubmitted       = "submitted"
	StatusPendingApproval = "pending_approval"
	StatusRejected        = "rejected"
	StatusLocked          = "locked"
	StatusPendingUnlock   = "pending_unlock"
	StatusPendingDisable  = "pending_disable"
	StatusDisabled        = "disabled"
	StatusClosed          = "closed"
	StatusDivested        = "divested"
	StatusUnknown         = "unknown"
)

var blockedMessages = map[string]string{
	StatusSubmitted:       "Your identity verification has been submitted and is awaiting review",
	StatusPendingApproval: "Your identity verification is pending approval",
	StatusRejected:        "Your identity verification was rejected, please contact support",
	StatusLocked:          "Your account with our banking partner is locked",
	StatusPendingUnlock:   "Your account with our banking partner is being unlocked, please try again later",
	StatusPendingDisable:  "Your account with our banking partner is being disabled",
	StatusDisabled:        "Your account with our banking partner has been disabled",
	StatusClosed:          "Your account with our banking partner has been closed",
	StatusDivested:        "Your account with our banking partner has been divested",
	StatusUnknown:         "We could not confirm your identity verification status, please contact support",
}

var folder = cases.Fold()

// Normalize folds a provider status for comparison. Empty or unrecognised values become StatusUnknown.
func Normalize(status string) string {
	s := folder.String(strings.TrimSpace(status))
	if s == StatusApproved {
		return s
	}
	if _, ok := blockedMessages[s]; ok {
		return s
	}
	return StatusUnknown
}

func IsApproved(status string) bool {
	return Normalize(status) == StatusApproved
}

// BlockedMessage returns the user-facing message for a non-approved status.
func BlockedMessage(status string) string {
	s := Normalize(status)
	if s == StatusApproved {
		return ""
	}
	return blockedMessages[s]
}

// BlockedError returns nil for approved statuses.
func BlockedError(status string) error {
	if IsApproved(status) {
		return nil
	}
	return apperr.ProviderKycBlocked(BlockedMessage(status))
}
