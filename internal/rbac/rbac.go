package rbac

// Role constants. Roles are derived per deal from which side of it the
// acting user sits on; admin is resolved from config, not from the deal.
const (
	RoleAdvertiser = "advertiser"
	RolePublisher  = "publisher"
	RoleAdmin      = "admin"
)

// Permission constants
const (
	PermCreateDeal        = "create_deal"
	PermProposeSchedule   = "propose_schedule"
	PermConfirmSchedule   = "confirm_schedule"
	PermSubmitCreative    = "submit_creative"
	PermRequestChanges    = "request_changes"
	PermProvideNotes      = "provide_notes"
	PermSubmitAdminReview = "submit_admin_review"
	PermCancelDeal        = "cancel_deal"
	PermDisputeDeal       = "dispute_deal"
	PermReleaseEscrow     = "release_escrow"
	PermRefundEscrow      = "refund_escrow"
)

// RolePermissions defines what each role can do.
var RolePermissions = map[string][]string{
	RoleAdvertiser: {
		PermCreateDeal, PermProposeSchedule, PermConfirmSchedule,
		PermRequestChanges, PermProvideNotes,
		PermCancelDeal, PermDisputeDeal, PermRefundEscrow,
	},
	RolePublisher: {
		PermCreateDeal, PermProposeSchedule, PermConfirmSchedule,
		PermSubmitCreative, PermSubmitAdminReview,
		PermCancelDeal, PermDisputeDeal, PermReleaseEscrow,
	},
}

// HasPermission checks if a role has a specific permission. Admin holds
// every permission.
func HasPermission(role, permission string) bool {
	if role == RoleAdmin {
		return true
	}
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

// IsFinancialOperation checks if permission moves funds. Financial
// operations are the ones the payout executor acts on.
func IsFinancialOperation(permission string) bool {
	return permission == PermReleaseEscrow || permission == PermRefundEscrow
}
