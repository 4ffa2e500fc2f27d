package isolation

import (
	"time"

	id "profilevault/pkg/domain"
)

const (
	retentionDaysStandard = 3 * 365
	retentionDaysExtended = 7 * 365
)

// BuildPolicy derives a profile's isolation policy from its security level.
// Cross-profile access starts false; higher levels require MFA on mutating
// operations and extend data retention to seven years.
func BuildPolicy(profileID id.ProfileID, level id.SecurityLevel, collections []id.CollectionName, now time.Time) Policy {
	retention := retentionDaysStandard
	if level.AtLeast(id.SensitivitySecret) {
		retention = retentionDaysExtended
	}

	var mutateRestrictions []Restriction
	if level.AtLeast(id.SensitivitySecret) {
		mutateRestrictions = []Restriction{RestrictionMFA}
	}
	if level.AtLeast(id.SensitivityTopSecret) {
		mutateRestrictions = append(mutateRestrictions, RestrictionTrustedDevice)
	}

	return Policy{
		ProfileID:               profileID,
		SecurityLevel:           level,
		AllowCrossProfileAccess: false,
		EncryptionRequired:      level.AtLeast(id.SensitivityConfidential),
		DataRetentionDays:       retention,
		Rules: []OperationRule{
			{Operation: OperationRead, Collections: collections},
			{Operation: OperationQuery, Collections: collections},
			{Operation: OperationWrite, Collections: collections, Restrictions: mutateRestrictions},
			{Operation: OperationDelete, Collections: collections, Restrictions: mutateRestrictions},
		},
		CreatedAt: now.UTC(),
	}
}

// ruleFor returns the policy rule covering an operation on a collection.
func (p Policy) ruleFor(operation Operation, collection id.CollectionName) (OperationRule, bool) {
	for _, rule := range p.Rules {
		if rule.Operation != operation {
			continue
		}
		if len(rule.Collections) == 0 {
			return rule, true
		}
		for _, allowed := range rule.Collections {
			if allowed == collection {
				return rule, true
			}
		}
	}
	return OperationRule{}, false
}

// controlFor returns the access control covering a requester, resource and
// operation. Controls with a grantee admit only that profile.
func (p Policy) controlFor(requester id.ProfileID, resource string, operation Operation) (AccessControl, bool) {
	for _, control := range p.AccessControls {
		if !control.Grantee.IsZero() && control.Grantee != requester {
			continue
		}
		if control.Resource != resource && control.Resource != "*" {
			continue
		}
		for _, permitted := range control.Permissions {
			if permitted == operation {
				return control, true
			}
		}
	}
	return AccessControl{}, false
}
