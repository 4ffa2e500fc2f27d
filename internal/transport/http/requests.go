package httptransport

import (
	"encoding/json"
	"time"

	"profilevault/internal/barrier"
	"profilevault/internal/profile"
	id "profilevault/pkg/domain"
	dErrors "profilevault/pkg/domain-errors"
)

type createProfileRequest struct {
	ProfileID     string `json:"profile_id"`
	Username      string `json:"username"`
	SecurityLevel string `json:"security_level"`
	Passphrase    string `json:"passphrase"`
}

func (r *createProfileRequest) Validate() error {
	if r.ProfileID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "profile_id is required")
	}
	if r.SecurityLevel == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "security_level is required")
	}
	return nil
}

func (r *createProfileRequest) ParsedLevel() (id.SecurityLevel, error) {
	return id.ParseSensitivity(r.SecurityLevel)
}

func profileCreateParams(r createProfileRequest, level id.SecurityLevel) profile.CreateParams {
	return profile.CreateParams{
		ProfileID:     r.ProfileID,
		Username:      r.Username,
		SecurityLevel: level,
		Passphrase:    r.Passphrase,
	}
}

type unlockRequest struct {
	Passphrase string `json:"passphrase"`
}

func (r *unlockRequest) Validate() error {
	if r.Passphrase == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "passphrase is required")
	}
	return nil
}

type deleteProfileRequest struct {
	Confirmation string `json:"confirmation"`
}

type exportRequest struct {
	Password string `json:"password"`
}

func (r *exportRequest) Validate() error {
	if r.Password == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "password is required")
	}
	return nil
}

type importRequest struct {
	Bundle   *profile.Export `json:"bundle"`
	Password string          `json:"password"`
}

func (r *importRequest) Validate() error {
	if r.Bundle == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "bundle is required")
	}
	if r.Password == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "password is required")
	}
	return nil
}

type isolateRequest struct {
	Data        json.RawMessage `json:"data"`
	Sensitivity string          `json:"sensitivity"`
}

func (r *isolateRequest) Validate() error {
	if len(r.Data) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "data is required")
	}
	if r.Sensitivity == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "sensitivity is required")
	}
	return nil
}

type grantShareRequest struct {
	Recipient  string `json:"recipient"`
	Collection string `json:"collection"`
	RecordID   string `json:"record_id"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

func (r *grantShareRequest) Validate() error {
	if r.Recipient == "" || r.Collection == "" || r.RecordID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "recipient, collection and record_id are required")
	}
	if r.TTLSeconds <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "ttl_seconds must be positive")
	}
	return nil
}

func (r *grantShareRequest) TTL() time.Duration {
	return time.Duration(r.TTLSeconds) * time.Second
}

type barrierRuleRequest struct {
	Action      string   `json:"action"`
	Operations  []string `json:"operations,omitempty"`
	Description string   `json:"description,omitempty"`
}

type createBarrierRequest struct {
	Source   string               `json:"source"`
	Target   string               `json:"target"`
	Type     string               `json:"type"`
	Strength string               `json:"strength"`
	Rules    []barrierRuleRequest `json:"rules"`
}

func (r *createBarrierRequest) Validate() error {
	if r.Source == "" || r.Target == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "source and target are required")
	}
	if r.Type == "" || r.Strength == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "type and strength are required")
	}
	if len(r.Rules) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "at least one rule is required")
	}
	return nil
}

func (r *createBarrierRequest) Params() barrier.CreateBarrierParams {
	rules := make([]barrier.Rule, 0, len(r.Rules))
	for _, rule := range r.Rules {
		rules = append(rules, barrier.Rule{
			Action:      barrier.RuleAction(rule.Action),
			Operations:  rule.Operations,
			Description: rule.Description,
		})
	}
	return barrier.CreateBarrierParams{
		Source:   id.ProfileID(r.Source),
		Target:   id.ProfileID(r.Target),
		Type:     barrier.Type(r.Type),
		Strength: barrier.Strength(r.Strength),
		Rules:    rules,
	}
}

type releaseQuarantineRequest struct {
	ReviewNote string `json:"review_note"`
}

func (r *releaseQuarantineRequest) Validate() error {
	if r.ReviewNote == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "review_note is required")
	}
	return nil
}
