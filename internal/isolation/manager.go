// Package isolation evaluates per-profile access policy. It owns the policy
// and boundary objects, answers allow/deny questions for the data plane, and
// keeps the boundary's integrity score current.
//
// Unlike the segregator, which raises on violation, this package mostly
// converts failures into a logged deny: access evaluation is an expected-path
// question, not an exceptional condition.
package isolation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"profilevault/internal/cryptoprov"
	"profilevault/internal/platform/metrics"
	"profilevault/internal/recordstore"
	"profilevault/internal/segregation"
	id "profilevault/pkg/domain"
	dErrors "profilevault/pkg/domain-errors"
	audit "profilevault/pkg/platform/audit"
	"profilevault/pkg/requestcontext"
)

// Owned is the structural owner tag. Payload types that implement it get a
// typed contamination check instead of relying on the substring heuristic
// alone.
type Owned interface {
	OwnerProfile() id.ProfileID
}

// Manager holds every profile's policy and boundary.
type Manager struct {
	records  recordstore.Store
	provider cryptoprov.Provider
	audit    *audit.Publisher
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu         sync.RWMutex
	policies   map[id.ProfileID]Policy
	boundaries map[id.ProfileID]*Boundary
}

// Option configures the Manager.
type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

func WithMetrics(metrics *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

func WithAudit(pub *audit.Publisher) Option {
	return func(m *Manager) { m.audit = pub }
}

func NewManager(records recordstore.Store, provider cryptoprov.Provider, opts ...Option) *Manager {
	m := &Manager{
		records:    records,
		provider:   provider,
		logger:     slog.New(slog.DiscardHandler),
		policies:   make(map[id.ProfileID]Policy),
		boundaries: make(map[id.ProfileID]*Boundary),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EnsureProfile builds the policy and boundary for a profile. Called on
// profile creation and again whenever the security level changes; the old
// policy is replaced wholesale.
func (m *Manager) EnsureProfile(ctx context.Context, profileID id.ProfileID, level id.SecurityLevel, collections []id.CollectionName) Policy {
	policy := BuildPolicy(profileID, level, collections, requestcontext.Now(ctx))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[profileID] = policy
	if _, ok := m.boundaries[profileID]; !ok {
		m.boundaries[profileID] = newBoundary(profileID)
	}
	return policy
}

// RemoveProfile drops a profile's policy and boundary.
func (m *Manager) RemoveProfile(profileID id.ProfileID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.policies, profileID)
	delete(m.boundaries, profileID)
}

// PolicyFor returns the profile's current policy.
func (m *Manager) PolicyFor(profileID id.ProfileID) (Policy, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	policy, ok := m.policies[profileID]
	return policy, ok
}

// AllowCrossProfileAccess flips the cross-profile flag and installs the
// access controls that govern it. Only an administrator may call this, and
// the override is always audited.
func (m *Manager) AllowCrossProfileAccess(ctx context.Context, profileID id.ProfileID, controls []AccessControl) error {
	m.mu.Lock()
	policy, ok := m.policies[profileID]
	if !ok {
		m.mu.Unlock()
		return dErrors.Newf(dErrors.CodeNotFound, "no policy for profile %s", profileID)
	}
	policy.AllowCrossProfileAccess = true
	policy.AccessControls = controls
	m.policies[profileID] = policy
	m.mu.Unlock()

	m.emit(ctx, audit.Event{
		Severity:  audit.SeverityHigh,
		Action:    audit.ActionPolicyOverride,
		ProfileID: profileID,
		Decision:  "override",
		Reason:    "administrator enabled cross-profile access",
	})
	return nil
}

// ValidateAccess answers whether requester may perform operation on target's
// resource. Self-access is always permitted and merely logged. Cross-profile
// access requires the target policy to allow it and a matching access control
// whose every condition currently holds.
func (m *Manager) ValidateAccess(ctx context.Context, requester, target id.ProfileID, operation Operation, resource string) bool {
	now := requestcontext.Now(ctx).UTC()

	if requester == target {
		m.logAccess(target, AccessRecord{
			Time: now, Requester: requester, Operation: operation, Resource: resource, Allowed: true,
		})
		m.emit(ctx, audit.Event{
			Severity:  audit.SeverityLow,
			Action:    audit.ActionSelfAccess,
			ProfileID: requester,
			Resource:  resource,
			Decision:  "allowed",
		})
		return true
	}

	allowed, reason := m.evaluateCross(ctx, requester, target, operation, resource)
	m.logAccess(target, AccessRecord{
		Time: now, Requester: requester, Operation: operation, Resource: resource, Allowed: allowed,
	})
	if !allowed {
		if m.metrics != nil {
			m.metrics.IncAccessDenied(reason)
		}
		m.emit(ctx, audit.Event{
			Severity:      audit.SeverityMedium,
			Action:        audit.ActionCrossProfileDenied,
			ProfileID:     requester,
			TargetProfile: target,
			Resource:      resource,
			Decision:      "denied",
			Reason:        reason,
		})
	}
	return allowed
}

// evaluateCross applies the target's policy to a cross-profile request. A
// resource-scoped control is an explicit grant and stands on its own; a
// wildcard-resource control additionally needs the profile-wide override.
func (m *Manager) evaluateCross(ctx context.Context, requester, target id.ProfileID, operation Operation, resource string) (bool, string) {
	m.mu.RLock()
	policy, ok := m.policies[target]
	m.mu.RUnlock()

	if !ok {
		return false, "no policy for target profile"
	}
	control, ok := policy.controlFor(requester, resource, operation)
	if !ok {
		if !policy.AllowCrossProfileAccess {
			return false, "cross-profile access disabled"
		}
		return false, "no matching access control"
	}
	if control.Resource == "*" && !policy.AllowCrossProfileAccess {
		return false, "cross-profile access disabled"
	}
	if !evaluateAll(ctx, control.Conditions) {
		return false, "access control condition not met"
	}
	return true, ""
}

// GrantResourceAccess installs a scoped access control on the owner's policy
// naming one grantee and one resource. Share grants route through here so
// policy evaluation sees them; the profile-wide cross-profile flag stays off.
func (m *Manager) GrantResourceAccess(ctx context.Context, owner, grantee id.ProfileID, resource string, permissions []Operation, conditions []Condition) error {
	m.mu.Lock()
	policy, ok := m.policies[owner]
	if !ok {
		m.mu.Unlock()
		return dErrors.Newf(dErrors.CodeNotFound, "no policy for profile %s", owner)
	}
	controls := append([]AccessControl(nil), policy.AccessControls...)
	controls = append(controls, AccessControl{
		Grantee:     grantee,
		Resource:    resource,
		Permissions: permissions,
		Conditions:  conditions,
	})
	policy.AccessControls = controls
	m.policies[owner] = policy
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "scoped access granted",
		"owner", owner, "grantee", grantee, "resource", resource)
	return nil
}

// RevokeResourceAccess removes the grantee's scoped controls for a resource.
// Revoking a grant that was never installed is a no-op.
func (m *Manager) RevokeResourceAccess(ctx context.Context, owner, grantee id.ProfileID, resource string) error {
	m.mu.Lock()
	policy, ok := m.policies[owner]
	if !ok {
		m.mu.Unlock()
		return dErrors.Newf(dErrors.CodeNotFound, "no policy for profile %s", owner)
	}
	controls := make([]AccessControl, 0, len(policy.AccessControls))
	for _, control := range policy.AccessControls {
		if control.Grantee == grantee && control.Resource == resource {
			continue
		}
		controls = append(controls, control)
	}
	policy.AccessControls = controls
	m.policies[owner] = policy
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "scoped access revoked",
		"owner", owner, "grantee", grantee, "resource", resource)
	return nil
}

// EnforceSegregation maps the operation onto the profile's namespaced
// collection and rejects anything outside the policy allow-list or failing a
// rule restriction. Returns the namespaced collection name on success.
func (m *Manager) EnforceSegregation(ctx context.Context, profileID id.ProfileID, collection id.CollectionName, operation Operation) (string, error) {
	m.mu.RLock()
	policy, ok := m.policies[profileID]
	m.mu.RUnlock()
	if !ok {
		return "", dErrors.Newf(dErrors.CodeNotFound, "no policy for profile %s", profileID)
	}

	rule, ok := policy.ruleFor(operation, collection)
	if !ok {
		m.denySegregation(ctx, profileID, collection, operation, "operation not in policy allow-list")
		return "", dErrors.Newf(dErrors.CodePolicyDenied,
			"%s on %s is not permitted by policy", operation, collection)
	}
	for _, restriction := range rule.Restrictions {
		if !m.restrictionHolds(ctx, restriction) {
			m.denySegregation(ctx, profileID, collection, operation, fmt.Sprintf("restriction %s not satisfied", restriction))
			return "", dErrors.Newf(dErrors.CodePolicyDenied,
				"%s on %s requires %s", operation, collection, restriction)
		}
	}
	return id.Namespaced(profileID, collection), nil
}

func (m *Manager) restrictionHolds(ctx context.Context, restriction Restriction) bool {
	switch restriction {
	case RestrictionMFA:
		return requestcontext.MFAVerified(ctx)
	case RestrictionTrustedDevice:
		return requestcontext.DeviceTrusted(ctx)
	default:
		return false
	}
}

func (m *Manager) denySegregation(ctx context.Context, profileID id.ProfileID, collection id.CollectionName, operation Operation, reason string) {
	if m.metrics != nil {
		m.metrics.IncAccessDenied("policy")
	}
	m.emit(ctx, audit.Event{
		Severity:   audit.SeverityMedium,
		Action:     audit.ActionPolicyDenied,
		ProfileID:  profileID,
		Collection: collection.String(),
		Decision:   "denied",
		Reason:     reason,
	})
}

// ScreenWrite checks an inbound payload against every other known profile
// before it enters the target's namespace. The write path calls this so a
// record carried over from another profile is refused at the door instead of
// surfacing later as a verification violation.
func (m *Manager) ScreenWrite(ctx context.Context, target id.ProfileID, data any) error {
	m.mu.RLock()
	others := make([]id.ProfileID, 0, len(m.policies))
	for profileID := range m.policies {
		if profileID != target {
			others = append(others, profileID)
		}
	}
	m.mu.RUnlock()

	for _, source := range others {
		if err := m.PreventContamination(ctx, source, target, data); err != nil {
			return err
		}
	}
	return nil
}

// PreventContamination refuses to move data from source into target when the
// payload still belongs to source. The structural owner tag is checked first;
// the serialized-substring search backs it up for untyped payloads.
func (m *Manager) PreventContamination(ctx context.Context, source, target id.ProfileID, data any) error {
	if owned, ok := data.(Owned); ok {
		if owner := owned.OwnerProfile(); owner == source && source != target {
			return m.contaminated(ctx, source, target, "owner tag names the source profile")
		}
	}
	if item, ok := asIsolatedData(data); ok {
		if item.ProfileID == source && source != target {
			return m.contaminated(ctx, source, target, "isolated item is tagged with the source profile")
		}
	}

	serialized, err := json.Marshal(data)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "serialize payload for contamination check")
	}
	if source != target && containsProfileTraces(serialized, source) {
		return m.contaminated(ctx, source, target, "serialized payload references the source profile")
	}
	return nil
}

func asIsolatedData(data any) (*segregation.IsolatedData, bool) {
	switch v := data.(type) {
	case segregation.IsolatedData:
		return &v, true
	case *segregation.IsolatedData:
		return v, true
	default:
		return nil, false
	}
}

// containsProfileTraces is the substring heuristic: it looks for the profile
// id or any of its namespaced collection names in the serialized payload.
func containsProfileTraces(serialized []byte, profileID id.ProfileID) bool {
	text := string(serialized)
	if strings.Contains(text, profileID.String()) {
		return true
	}
	return strings.Contains(text, id.NamespacePrefix(profileID))
}

func (m *Manager) contaminated(ctx context.Context, source, target id.ProfileID, reason string) error {
	if m.metrics != nil {
		m.metrics.IncViolation("contamination")
	}
	m.logger.ErrorContext(ctx, "data contamination refused",
		"source", source, "target", target, "reason", reason)
	m.emit(ctx, audit.Event{
		Severity:      audit.SeverityCritical,
		Action:        audit.ActionContamination,
		ProfileID:     source,
		TargetProfile: target,
		Decision:      "refused",
		Reason:        reason,
	})
	return dErrors.Newf(dErrors.CodeContamination,
		"payload would contaminate profile %s with data from %s", target, source)
}

// VerifyIntegrity recomputes a profile's isolation score as passed/total over
// per-collection ownership and checksum checks, a policy sanity check, and an
// encryption-compliance check. The score and timestamp are persisted onto the
// boundary.
func (m *Manager) VerifyIntegrity(ctx context.Context, profileID id.ProfileID) (float64, error) {
	collections, err := m.records.Collections(ctx, id.NamespacePrefix(profileID))
	if err != nil {
		return 0, fmt.Errorf("list profile collections: %w", err)
	}

	var passed, total int
	stats := make(map[string]CollectionStats)
	var encryptedItems, totalItems int

	for _, collection := range collections {
		if recordstore.IsGlobal(collection) {
			continue
		}
		total++
		entries, err := m.records.Query(ctx, collection, nil)
		if err != nil {
			return 0, fmt.Errorf("scan collection %s: %w", collection, err)
		}

		clean := true
		collStats := CollectionStats{Items: len(entries)}
		for _, entry := range entries {
			var item segregation.IsolatedData
			if err := json.Unmarshal(entry.Data, &item); err != nil {
				clean = false
				continue
			}
			if item.ProfileID != profileID {
				clean = false
				continue
			}
			if !bytes.Equal(m.provider.Digest(item.Data), item.Metadata.Checksum) {
				clean = false
				continue
			}
			if item.Isolation.Encrypted {
				collStats.Encrypted++
			}
		}
		if clean {
			passed++
		}
		stats[collection] = collStats
		encryptedItems += collStats.Encrypted
		totalItems += collStats.Items
	}

	m.mu.RLock()
	policy, hasPolicy := m.policies[profileID]
	m.mu.RUnlock()

	// Policy sanity: a policy exists and cross-profile access is off unless
	// explicitly overridden with access controls in place.
	total++
	if hasPolicy && (!policy.AllowCrossProfileAccess || len(policy.AccessControls) > 0) {
		passed++
	}

	// Encryption compliance: when the policy requires encryption, every
	// stored item must be encrypted.
	if hasPolicy && policy.EncryptionRequired {
		total++
		if encryptedItems == totalItems {
			passed++
		}
	}

	score := 100.0
	if total > 0 {
		score = 100 * float64(passed) / float64(total)
	}

	m.mu.Lock()
	boundary, ok := m.boundaries[profileID]
	if !ok {
		boundary = newBoundary(profileID)
		m.boundaries[profileID] = boundary
	}
	boundary.Collections = stats
	boundary.IsolationScore = score
	boundary.VerifiedAt = requestcontext.Now(ctx).UTC()
	m.mu.Unlock()

	return score, nil
}

// BoundaryFor returns a snapshot of the profile's boundary.
func (m *Manager) BoundaryFor(profileID id.ProfileID) (Boundary, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	boundary, ok := m.boundaries[profileID]
	if !ok {
		return Boundary{}, false
	}
	snapshot := Boundary{
		ProfileID:      boundary.ProfileID,
		Collections:    make(map[string]CollectionStats, len(boundary.Collections)),
		IsolationScore: boundary.IsolationScore,
		VerifiedAt:     boundary.VerifiedAt,
		accessLog:      append([]AccessRecord(nil), boundary.accessLog...),
		logHead:        boundary.logHead,
		logCount:       boundary.logCount,
	}
	for name, collStats := range boundary.Collections {
		snapshot.Collections[name] = collStats
	}
	return snapshot, true
}

func (m *Manager) logAccess(profileID id.ProfileID, record AccessRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	boundary, ok := m.boundaries[profileID]
	if !ok {
		boundary = newBoundary(profileID)
		m.boundaries[profileID] = boundary
	}
	boundary.recordAccess(record)
}

func (m *Manager) emit(ctx context.Context, event audit.Event) {
	if m.audit == nil {
		return
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	m.audit.Emit(ctx, event)
}
