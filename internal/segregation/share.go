package segregation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"profilevault/internal/recordstore"
	id "profilevault/pkg/domain"
	dErrors "profilevault/pkg/domain-errors"
	audit "profilevault/pkg/platform/audit"
	"profilevault/pkg/requestcontext"
)

// GrantShare gives recipient time-bounded read access to one of the owner's
// records. The record must exist and belong to the owner at grant time.
func (s *Segregator) GrantShare(ctx context.Context, owner, recipient id.ProfileID, collection id.CollectionName, recordID string, ttl time.Duration) (*Share, error) {
	if owner == recipient {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "cannot share a record with its owner")
	}
	if ttl <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "share ttl must be positive")
	}

	raw, err := s.records.Get(ctx, id.Namespaced(owner, collection), recordID)
	if err != nil {
		if errors.Is(err, recordstore.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "record %s not found in %s", recordID, collection)
		}
		return nil, fmt.Errorf("fetch shared record: %w", err)
	}
	var item IsolatedData
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode shared record")
	}
	if item.ProfileID != owner {
		return nil, dErrors.New(dErrors.CodeCrossProfileAccess, "only the owning profile can share a record")
	}

	now := requestcontext.Now(ctx).UTC()
	share := &Share{
		ID:         id.NewRecordID().String(),
		Owner:      owner,
		Recipient:  recipient,
		Collection: collection,
		RecordID:   recordID,
		Granted:    now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := s.saveShare(ctx, share); err != nil {
		return nil, err
	}

	s.emit(ctx, audit.Event{
		Severity:      audit.SeverityMedium,
		Action:        audit.ActionShareGranted,
		ProfileID:     owner,
		TargetProfile: recipient,
		Collection:    collection.String(),
		Resource:      recordID,
		Decision:      "granted",
		Reason:        fmt.Sprintf("expires %s", share.ExpiresAt.Format(time.RFC3339)),
	})
	return share, nil
}

// RevokeShare marks a share revoked. Only the owning profile may revoke.
func (s *Segregator) RevokeShare(ctx context.Context, owner id.ProfileID, shareID string) error {
	share, err := s.getShare(ctx, shareID)
	if err != nil {
		return err
	}
	if share.Owner != owner {
		return dErrors.New(dErrors.CodeCrossProfileAccess, "only the owning profile can revoke a share")
	}
	if share.Revoked {
		return nil
	}

	now := requestcontext.Now(ctx).UTC()
	share.Revoked = true
	share.RevokedAt = &now
	if err := s.saveShare(ctx, share); err != nil {
		return err
	}

	s.emit(ctx, audit.Event{
		Severity:      audit.SeverityMedium,
		Action:        audit.ActionShareRevoked,
		ProfileID:     owner,
		TargetProfile: share.Recipient,
		Collection:    share.Collection.String(),
		Resource:      share.RecordID,
		Decision:      "revoked",
	})
	return nil
}

// ShareByID returns the share record without any authorization check; the
// caller decides who may see it.
func (s *Segregator) ShareByID(ctx context.Context, shareID string) (*Share, error) {
	return s.getShare(ctx, shareID)
}

// RetrieveShared reads a shared record on the recipient's behalf. The share
// must be live; the payload is decrypted with the owner's keys and handed to
// the recipient, which is the one sanctioned path across the boundary.
func (s *Segregator) RetrieveShared(ctx context.Context, recipient id.ProfileID, shareID string, out any) error {
	share, err := s.getShare(ctx, shareID)
	if err != nil {
		return err
	}
	if share.Recipient != recipient {
		s.emit(ctx, audit.Event{
			Severity:      audit.SeverityHigh,
			Action:        audit.ActionCrossProfileDenied,
			ProfileID:     recipient,
			TargetProfile: share.Owner,
			Collection:    share.Collection.String(),
			Resource:      share.RecordID,
			Decision:      "denied",
			Reason:        "share does not name the requesting profile",
		})
		return dErrors.New(dErrors.CodeCrossProfileAccess, "share does not name the requesting profile")
	}
	if !share.Usable(requestcontext.Now(ctx).UTC()) {
		return dErrors.New(dErrors.CodeForbidden, "share is revoked or expired")
	}
	return s.Retrieve(ctx, share.Owner, share.Collection, share.RecordID, out)
}

// ListShares returns every share granted by the given profile.
func (s *Segregator) ListShares(ctx context.Context, owner id.ProfileID) ([]Share, error) {
	entries, err := s.records.Query(ctx, recordstore.CollectionDataShares,
		[]recordstore.Filter{{Field: "owner", Value: owner.String()}})
	if err != nil {
		return nil, fmt.Errorf("query shares: %w", err)
	}
	return decodeShares(entries)
}

func (s *Segregator) expiredShares(ctx context.Context, now time.Time) ([]Share, error) {
	entries, err := s.records.Query(ctx, recordstore.CollectionDataShares, nil)
	if err != nil {
		return nil, fmt.Errorf("query shares: %w", err)
	}
	shares, err := decodeShares(entries)
	if err != nil {
		return nil, err
	}
	var expired []Share
	for _, share := range shares {
		if share.Expired(now) {
			expired = append(expired, share)
		}
	}
	return expired, nil
}

func (s *Segregator) getShare(ctx context.Context, shareID string) (*Share, error) {
	raw, err := s.records.Get(ctx, recordstore.CollectionDataShares, shareID)
	if err != nil {
		if errors.Is(err, recordstore.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "share %s not found", shareID)
		}
		return nil, fmt.Errorf("fetch share: %w", err)
	}
	var share Share
	if err := json.Unmarshal(raw, &share); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode share")
	}
	return &share, nil
}

func (s *Segregator) saveShare(ctx context.Context, share *Share) error {
	raw, err := json.Marshal(share)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode share")
	}
	if err := s.records.Set(ctx, recordstore.CollectionDataShares, share.ID, raw); err != nil {
		return fmt.Errorf("store share: %w", err)
	}
	return nil
}

func decodeShares(entries []recordstore.Entry) ([]Share, error) {
	shares := make([]Share, 0, len(entries))
	for _, entry := range entries {
		var share Share
		if err := json.Unmarshal(entry.Data, &share); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode share")
		}
		shares = append(shares, share)
	}
	return shares, nil
}
