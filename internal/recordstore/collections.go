package recordstore

// Cross-cutting collections. These are global (not profile-namespaced) and
// keyed by generated IDs. Everything else in the store lives under a
// <profileID>_<collection> namespace owned by exactly one profile.
const (
	CollectionProfiles        = "profiles"
	CollectionBarriers        = "security_barriers"
	CollectionBreachAttempts  = "breach_attempts"
	CollectionIsolationEvents = "isolation_events"
	CollectionViolationAlerts = "violation_alerts"
	CollectionQuarantine      = "quarantine_zone"
	CollectionAccessLogs      = "access_logs"
	CollectionDataShares      = "data_shares"
	CollectionProfileBackups  = "profile_backups"
)

var globalCollections = map[string]struct{}{
	CollectionProfiles:        {},
	CollectionBarriers:        {},
	CollectionBreachAttempts:  {},
	CollectionIsolationEvents: {},
	CollectionViolationAlerts: {},
	CollectionQuarantine:      {},
	CollectionAccessLogs:      {},
	CollectionDataShares:      {},
	CollectionProfileBackups:  {},
}

// IsGlobal reports whether a collection is one of the cross-cutting
// collections rather than a profile namespace. Scans over profile data must
// skip these; some of their names would otherwise parse as `<profile>_<rest>`.
func IsGlobal(collection string) bool {
	_, ok := globalCollections[collection]
	return ok
}
