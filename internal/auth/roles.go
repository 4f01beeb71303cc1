// Package auth provides plaintext-credential login sessions and the
// static role/permission map. Roles are opaque configurable strings;
// no username literal ever appears in an authorization decision.
package auth

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Capability names gate individual ledger and shop operations.
const (
	CapTaskCreate        = "tasks.create"
	CapTaskDelete        = "tasks.delete"
	CapTaskApprove       = "tasks.approve"
	CapDemeritIssue      = "demerits.issue"
	CapAppealReview      = "appeals.review"
	CapSuggestionCreate  = "suggestions.create"
	CapSuggestionReview  = "suggestions.review"
	CapRewardManage      = "rewards.manage"
	CapPurchaseBuy       = "purchases.buy"
	CapPurchaseAuthorize = "purchases.authorize"
	CapPointsAdjust      = "points.adjust"
	CapSettingsManage    = "settings.manage"
)

// RoleMap maps a role name to its capability set.
type RoleMap map[string]map[string]bool

type roleMapFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// DefaultRoleMap returns the built-in permission map: the steward
// role carries every capability, the member role the self-service ones.
func DefaultRoleMap(stewardRole, memberRole string) RoleMap {
	return RoleMap{
		stewardRole: {
			CapTaskCreate:        true,
			CapTaskDelete:        true,
			CapTaskApprove:       true,
			CapDemeritIssue:      true,
			CapAppealReview:      true,
			CapSuggestionCreate:  true,
			CapSuggestionReview:  true,
			CapRewardManage:      true,
			CapPurchaseBuy:       true,
			CapPurchaseAuthorize: true,
			CapPointsAdjust:      true,
			CapSettingsManage:    true,
		},
		memberRole: {
			CapSuggestionCreate: true,
			CapPurchaseBuy:      true,
		},
	}
}

// LoadRoleMap reads a role map from a YAML file of the form:
//
//	roles:
//	  steward: [tasks.create, tasks.approve, ...]
//	  member: [suggestions.create, purchases.buy]
func LoadRoleMap(path string) (RoleMap, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read role map: %w", err)
	}

	var file roleMapFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse role map: %w", err)
	}
	if len(file.Roles) == 0 {
		return nil, fmt.Errorf("role map defines no roles")
	}

	rm := make(RoleMap, len(file.Roles))
	for role, caps := range file.Roles {
		set := make(map[string]bool, len(caps))
		for _, cap := range caps {
			set[cap] = true
		}
		rm[role] = set
	}
	return rm, nil
}

// Can reports whether the role carries the capability.
func (rm RoleMap) Can(role, capability string) bool {
	caps, ok := rm[role]
	if !ok {
		return false
	}
	return caps[capability]
}
