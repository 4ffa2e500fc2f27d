// Package barrier is the coarse enforcement layer between profile pairs.
// Barriers are independent of per-profile policy: even if policy evaluation
// is wrong or overridden, an active deny barrier still blocks the operation
// and records the attempt as evidence.
package barrier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"profilevault/internal/platform/metrics"
	"profilevault/internal/recordstore"
	id "profilevault/pkg/domain"
	dErrors "profilevault/pkg/domain-errors"
	audit "profilevault/pkg/platform/audit"
	"profilevault/pkg/requestcontext"
)

// Risk scoring weights and thresholds.
const (
	riskWeightFrequency  = 30
	riskWeightOffHours   = 20
	riskWeightNovelOp    = 25
	riskWeightSimilarity = 40

	riskDetectionThreshold = 50
	frequencyWindow        = time.Hour
	frequencyLimit         = 10
	similarityThreshold    = 0.8
)

// profileHistory tracks a profile's recent access pattern for risk scoring.
type profileHistory struct {
	accesses   []time.Time
	operations map[string]int
}

// Manager creates, enforces, and resets barriers, scores suspicious access,
// and owns the quarantine zone.
type Manager struct {
	store   *Store
	records recordstore.Store
	audit   *audit.Publisher
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	history map[id.ProfileID]*profileHistory
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

func NewManager(store *Store, records recordstore.Store, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		records: records,
		logger:  slog.New(slog.DiscardHandler),
		history: make(map[id.ProfileID]*profileHistory),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// InitializeProfileBarriers creates a profile's default barriers: an
// access-control barrier denying all cross-profile operations (with an
// audit-everything rule at HIGH strength and above) and, at CONFIDENTIAL and
// above, a data-encryption barrier.
func (m *Manager) InitializeProfileBarriers(ctx context.Context, profileID id.ProfileID, level id.SecurityLevel) ([]*SecurityBarrier, error) {
	strength := StrengthFor(level)
	now := requestcontext.Now(ctx).UTC()

	accessRules := []Rule{
		{Action: ActionAllow, Operations: []string{OperationSharedRead},
			Description: "share reads pass here; the grant itself is checked downstream"},
		{Action: ActionDeny, Description: "deny all cross-profile operations"},
	}
	if strength.AtLeast(StrengthHigh) {
		accessRules = append([]Rule{
			{Action: ActionAudit, Description: "audit every cross-profile attempt"},
		}, accessRules...)
	}

	barriers := []*SecurityBarrier{{
		ID:       id.NewBarrierID(),
		Source:   id.WildcardProfile,
		Target:   profileID,
		Type:     TypeAccessControl,
		Strength: strength,
		Rules:    accessRules,
		Status:   StatusActive,
		Created:  now,
	}}

	if level.AtLeast(id.SensitivityConfidential) {
		barriers = append(barriers, &SecurityBarrier{
			ID:       id.NewBarrierID(),
			Source:   id.WildcardProfile,
			Target:   profileID,
			Type:     TypeDataEncryption,
			Strength: strength,
			Rules: []Rule{
				{Action: ActionDeny, Operations: []string{"read_plaintext", "export_unencrypted"},
					Description: "sensitive data leaves only through the encryptor"},
			},
			Status:  StatusActive,
			Created: now,
		})
	}

	for _, barrier := range barriers {
		if err := m.store.Save(ctx, barrier); err != nil {
			return nil, err
		}
		m.emit(ctx, audit.Event{
			Severity:  audit.SeverityLow,
			Action:    audit.ActionBarrierCreated,
			ProfileID: profileID,
			Resource:  barrier.ID.String(),
			Decision:  "created",
			Reason:    fmt.Sprintf("%s barrier at %s strength", barrier.Type, barrier.Strength),
		})
	}
	return barriers, nil
}

// CreateBarrierParams describes an administrator-defined barrier.
type CreateBarrierParams struct {
	Source   id.ProfileID
	Target   id.ProfileID
	Type     Type
	Strength Strength
	Rules    []Rule
}

// CreateBarrier installs a custom barrier between a profile pair. Custom
// barriers sit alongside the profile defaults and are evaluated in the same
// pass; a deny rule here can block even the sanctioned share-read channel.
func (m *Manager) CreateBarrier(ctx context.Context, params CreateBarrierParams) (*SecurityBarrier, error) {
	if params.Source.IsZero() || params.Target.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "source and target are required")
	}
	if !params.Type.Valid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown barrier type %q", params.Type)
	}
	if !params.Strength.Valid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown barrier strength %q", params.Strength)
	}
	if len(params.Rules) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "at least one rule is required")
	}
	for _, rule := range params.Rules {
		if !rule.Action.Valid() {
			return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown rule action %q", rule.Action)
		}
	}

	barrier := &SecurityBarrier{
		ID:       id.NewBarrierID(),
		Source:   params.Source,
		Target:   params.Target,
		Type:     params.Type,
		Strength: params.Strength,
		Rules:    params.Rules,
		Status:   StatusActive,
		Created:  requestcontext.Now(ctx).UTC(),
	}
	if err := m.store.Save(ctx, barrier); err != nil {
		return nil, err
	}
	m.emit(ctx, audit.Event{
		Severity:      audit.SeverityMedium,
		Action:        audit.ActionBarrierCreated,
		ProfileID:     params.Source,
		TargetProfile: params.Target,
		Resource:      barrier.ID.String(),
		Decision:      "created",
		Reason:        fmt.Sprintf("custom %s barrier at %s strength", barrier.Type, barrier.Strength),
	})
	return barrier, nil
}

// EnforceBarriers evaluates every matching active barrier against the
// request. A matching deny rule short-circuits to blocked and records a
// breach attempt on that barrier; breached barriers are skipped entirely
// until an administrator resets them.
func (m *Manager) EnforceBarriers(ctx context.Context, request AccessRequest) (Decision, error) {
	m.recordAccess(ctx, request.Source, request.Operation)

	barriers, err := m.store.List(ctx)
	if err != nil {
		return Decision{}, err
	}

	decision := Decision{Allowed: true}
candidates:
	for _, candidate := range barriers {
		if candidate.Status != StatusActive || !candidate.Matches(request.Source, request.Target) {
			continue
		}
		decision.Evaluated = append(decision.Evaluated, candidate.ID)

		for _, rule := range candidate.Rules {
			if !rule.matches(request.Operation) {
				continue
			}
			switch rule.Action {
			case ActionAudit:
				m.emit(ctx, audit.Event{
					Severity:      audit.SeverityLow,
					Action:        audit.ActionBarrierBlocked,
					ProfileID:     request.Source,
					TargetProfile: request.Target,
					Resource:      request.Resource,
					Decision:      "audited",
					Reason:        rule.Description,
				})
			case ActionDeny:
				evidence := []string{
					fmt.Sprintf("rule %q matched operation %s", rule.Description, request.Operation),
				}
				if err := m.recordBreach(ctx, candidate.ID, request, evidence); err != nil {
					m.logger.ErrorContext(ctx, "breach attempt not recorded",
						"barrier_id", candidate.ID, "error", err)
				}
				decision.Allowed = false
				decision.BlockedBy = candidate.ID
				decision.Evidence = evidence
				return decision, nil
			case ActionAllow:
				// Settles this barrier; later barriers still apply.
				continue candidates
			}
		}
	}
	return decision, nil
}

// recordBreach appends the attempt atomically through the store's Execute
// region and persists it to the global evidence collection.
func (m *Manager) recordBreach(ctx context.Context, barrierID id.BarrierID, request AccessRequest, evidence []string) error {
	attempt := BreachAttempt{
		ID:        id.NewRecordID().String(),
		BarrierID: barrierID,
		Timestamp: requestcontext.Now(ctx).UTC(),
		Source:    request.Source,
		Target:    request.Target,
		Operation: request.Operation,
		Evidence:  evidence,
	}

	barrier, err := m.store.Execute(ctx, barrierID, func(b *SecurityBarrier) error {
		b.RecordBreach(attempt)
		return nil
	})
	if err != nil {
		return err
	}

	raw, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("encode breach attempt: %w", err)
	}
	if err := m.records.Set(ctx, recordstore.CollectionBreachAttempts, attempt.ID, raw); err != nil {
		return fmt.Errorf("store breach attempt: %w", err)
	}

	if barrier.Status == StatusBreached {
		if m.metrics != nil {
			m.metrics.IncBarrierBreach()
		}
		m.emit(ctx, audit.Event{
			Severity:      audit.SeverityCritical,
			Action:        audit.ActionBarrierBreached,
			ProfileID:     request.Source,
			TargetProfile: request.Target,
			Resource:      barrierID.String(),
			Decision:      "breached",
			Reason:        fmt.Sprintf("%d recorded attempts", len(barrier.BreachAttempts)),
		})
	} else {
		m.emit(ctx, audit.Event{
			Severity:      audit.SeverityMedium,
			Action:        audit.ActionBarrierBlocked,
			ProfileID:     request.Source,
			TargetProfile: request.Target,
			Resource:      barrierID.String(),
			Decision:      "blocked",
			Evidence:      evidence,
		})
	}
	return nil
}

// Reset restores a breached or inactive barrier to active and clears its
// attempts. Administrative operation; always audited.
func (m *Manager) Reset(ctx context.Context, barrierID id.BarrierID) (*SecurityBarrier, error) {
	barrier, err := m.store.Execute(ctx, barrierID, func(b *SecurityBarrier) error {
		b.Reset()
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.emit(ctx, audit.Event{
		Severity:  audit.SeverityHigh,
		Action:    audit.ActionBarrierReset,
		ProfileID: barrier.Target,
		Resource:  barrierID.String(),
		Decision:  "reset",
		Reason:    "administrator reset",
	})
	return barrier, nil
}

// recordAccess folds one access into the source profile's history.
func (m *Manager) recordAccess(ctx context.Context, profileID id.ProfileID, operation string) {
	now := requestcontext.Now(ctx).UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.historyFor(profileID)
	h.accesses = append(h.accesses, now)
	h.operations[operation]++

	// Trim accesses older than the scoring window.
	cutoff := now.Add(-frequencyWindow)
	trimmed := h.accesses[:0]
	for _, t := range h.accesses {
		if t.After(cutoff) {
			trimmed = append(trimmed, t)
		}
	}
	h.accesses = trimmed
}

func (m *Manager) historyFor(profileID id.ProfileID) *profileHistory {
	h, ok := m.history[profileID]
	if !ok {
		h = &profileHistory{operations: make(map[string]int)}
		m.history[profileID] = h
	}
	return h
}

// DetectUnauthorizedAccess scores a request with four independent heuristics:
// access frequency in the last hour, off-hours timing, operation novelty, and
// behavioral-signature similarity between source and target. The score is
// not clamped; anything above 50 is flagged.
func (m *Manager) DetectUnauthorizedAccess(ctx context.Context, request AccessRequest) RiskAssessment {
	now := requestcontext.Now(ctx).UTC()
	var assessment RiskAssessment

	m.mu.Lock()
	source := m.historyFor(request.Source)
	target := m.historyFor(request.Target)

	cutoff := now.Add(-frequencyWindow)
	var recent int
	for _, t := range source.accesses {
		if t.After(cutoff) {
			recent++
		}
	}
	novel := source.operations[request.Operation] == 0
	similarity := signatureSimilarity(source.operations, target.operations)
	m.mu.Unlock()

	if recent > frequencyLimit {
		assessment.Score += riskWeightFrequency
		assessment.Factors = append(assessment.Factors,
			fmt.Sprintf("%d accesses in the last hour", recent))
	}
	if hour := now.Hour(); hour < 6 || hour > 22 {
		assessment.Score += riskWeightOffHours
		assessment.Factors = append(assessment.Factors,
			fmt.Sprintf("off-hours access at %02d:00", hour))
	}
	if novel {
		assessment.Score += riskWeightNovelOp
		assessment.Factors = append(assessment.Factors,
			fmt.Sprintf("operation %s outside historical set", request.Operation))
	}
	if similarity > similarityThreshold {
		assessment.Score += riskWeightSimilarity
		assessment.Factors = append(assessment.Factors,
			fmt.Sprintf("behavioral signature similarity %.2f", similarity))
	}

	assessment.Detected = assessment.Score > riskDetectionThreshold
	return assessment
}

// signatureSimilarity is the Jaccard index over the two profiles' operation
// sets. Two profiles with identical histories score 1.0; two with no history
// in common score 0.
func signatureSimilarity(a, b map[string]int) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var intersection int
	for op := range a {
		if _, ok := b[op]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// Quarantine stores the offending request with its evidence pending manual
// review and raises a high-severity alert.
func (m *Manager) Quarantine(ctx context.Context, request AccessRequest, evidence []string, riskScore int) (*QuarantineItem, error) {
	item := &QuarantineItem{
		ID:            id.NewRecordID().String(),
		Request:       request,
		Evidence:      evidence,
		RiskScore:     riskScore,
		QuarantinedAt: requestcontext.Now(ctx).UTC(),
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encode quarantine item: %w", err)
	}
	if err := m.records.Set(ctx, recordstore.CollectionQuarantine, item.ID, raw); err != nil {
		return nil, fmt.Errorf("store quarantine item: %w", err)
	}

	if m.metrics != nil {
		m.metrics.IncQuarantine()
	}
	m.emit(ctx, audit.Event{
		Severity:      audit.SeverityHigh,
		Action:        audit.ActionQuarantined,
		ProfileID:     request.Source,
		TargetProfile: request.Target,
		Resource:      item.ID,
		Decision:      "quarantined",
		Evidence:      evidence,
	})
	return item, nil
}

// ListQuarantine returns quarantine items, unreleased first, oldest first.
func (m *Manager) ListQuarantine(ctx context.Context) ([]QuarantineItem, error) {
	entries, err := m.records.Query(ctx, recordstore.CollectionQuarantine, nil)
	if err != nil {
		return nil, fmt.Errorf("query quarantine: %w", err)
	}
	items := make([]QuarantineItem, 0, len(entries))
	for _, entry := range entries {
		var item QuarantineItem
		if err := json.Unmarshal(entry.Data, &item); err != nil {
			return nil, fmt.Errorf("decode quarantine item %s: %w", entry.ID, err)
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Released != items[j].Released {
			return !items[i].Released
		}
		return items[i].QuarantinedAt.Before(items[j].QuarantinedAt)
	})
	return items, nil
}

// ReleaseQuarantine marks an item reviewed and released.
func (m *Manager) ReleaseQuarantine(ctx context.Context, itemID, reviewNote string) (*QuarantineItem, error) {
	raw, err := m.records.Get(ctx, recordstore.CollectionQuarantine, itemID)
	if err != nil {
		if errors.Is(err, recordstore.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "quarantine item %s not found", itemID)
		}
		return nil, fmt.Errorf("fetch quarantine item: %w", err)
	}
	var item QuarantineItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("decode quarantine item: %w", err)
	}
	if item.Released {
		return nil, dErrors.Newf(dErrors.CodeConflict, "quarantine item %s already released", itemID)
	}

	now := requestcontext.Now(ctx).UTC()
	item.Released = true
	item.ReleasedAt = &now
	item.ReviewNote = reviewNote
	updated, err := json.Marshal(&item)
	if err != nil {
		return nil, fmt.Errorf("encode quarantine item: %w", err)
	}
	if err := m.records.Set(ctx, recordstore.CollectionQuarantine, item.ID, updated); err != nil {
		return nil, fmt.Errorf("store quarantine item: %w", err)
	}

	m.emit(ctx, audit.Event{
		Severity:      audit.SeverityMedium,
		Action:        audit.ActionQuarantineFreed,
		ProfileID:     item.Request.Source,
		TargetProfile: item.Request.Target,
		Resource:      item.ID,
		Decision:      "released",
		Reason:        reviewNote,
	})
	return &item, nil
}

// RemoveProfileBarriers deletes every barrier targeting the profile. Used by
// profile deletion.
func (m *Manager) RemoveProfileBarriers(ctx context.Context, profileID id.ProfileID) error {
	barriers, err := m.store.List(ctx)
	if err != nil {
		return err
	}
	for _, barrier := range barriers {
		if barrier.Target != profileID && barrier.Source != profileID {
			continue
		}
		if err := m.store.Delete(ctx, barrier.ID); err != nil {
			return err
		}
	}
	return nil
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
