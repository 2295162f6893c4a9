package service

import (
	"context"
	"errors"
	"strings"
	"time"

	accountdomain "storefront/backend/internal/account/domain"
	accountrepo "storefront/backend/internal/account/repository"
	"storefront/backend/internal/audit"
	"storefront/backend/internal/platform/autherr"
	policyengine "storefront/backend/internal/policy/engine"
)

const (
	defaultActivityLimit = 20
	maxActivityLimit     = 100
)

// ProfileInput holds the editable profile fields. A nil field is left unchanged; an empty
// Phone or AvatarURL clears it.
type ProfileInput struct {
	Name      *string
	Phone     *string
	AvatarURL *string
}

// ActivityEntry is one item of an account's security activity.
type ActivityEntry struct {
	ID        string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}

// GetCurrentAccount returns the caller's account.
func (s *AuthService) GetCurrentAccount(ctx context.Context, accountID string) (*AccountView, error) {
	a, err := s.activeAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return viewOf(a), nil
}

// UpdateProfile applies a partial profile update. Email and role cannot be changed here.
func (s *AuthService) UpdateProfile(ctx context.Context, accountID string, in ProfileInput) (*AccountView, error) {
	fields := map[string]string{}
	var u accountrepo.ProfileUpdate
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			fields["name"] = "name must not be empty"
		}
		u.Name = &name
	}
	if in.Phone != nil {
		phone := strings.TrimSpace(*in.Phone)
		if msg := validatePhone(phone); msg != "" {
			fields["phone"] = msg
		}
		u.Phone = &phone
	}
	if in.AvatarURL != nil {
		avatar := strings.TrimSpace(*in.AvatarURL)
		if msg := validateAvatarURL(avatar); msg != "" {
			fields["avatarUrl"] = msg
		}
		u.AvatarURL = &avatar
	}
	if len(fields) > 0 {
		return nil, autherr.Validation(fields)
	}
	if u.Name == nil && u.Phone == nil && u.AvatarURL == nil {
		return s.GetCurrentAccount(ctx, accountID)
	}
	if _, err := s.activeAccount(ctx, accountID); err != nil {
		return nil, err
	}
	a, err := s.accounts.UpdateProfile(ctx, accountID, u, s.now().UTC())
	if err != nil {
		var dup *accountrepo.DuplicateError
		if errors.As(err, &dup) {
			return nil, duplicateErr(dup.Field)
		}
		return nil, err
	}
	if a == nil {
		return nil, autherr.ErrTokenInvalid
	}
	s.audit.LogEvent(ctx, a.ID, audit.ActionProfileUpdated, audit.ResourceAccount, changedFields(u))
	return viewOf(a), nil
}

// Capabilities returns the storefront actions the caller may perform.
func (s *AuthService) Capabilities(ctx context.Context, accountID string) ([]string, error) {
	a, err := s.activeAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if s.policy == nil {
		return []string{}, nil
	}
	return s.policy.Capabilities(ctx, policyengine.Subject{AccountID: a.ID, Role: string(a.Role), Verified: a.IsVerified})
}

// Allowed reports whether the caller may perform action. Policy errors deny.
func (s *AuthService) Allowed(ctx context.Context, accountID, action string) (bool, error) {
	a, err := s.activeAccount(ctx, accountID)
	if err != nil {
		return false, err
	}
	if s.policy == nil {
		return false, nil
	}
	return s.policy.Allowed(ctx, policyengine.Subject{AccountID: a.ID, Role: string(a.Role), Verified: a.IsVerified}, action)
}

// ListActivity returns the caller's most recent security events, newest first.
func (s *AuthService) ListActivity(ctx context.Context, accountID string, limit, offset int) ([]ActivityEntry, error) {
	if s.activity == nil {
		return []ActivityEntry{}, nil
	}
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	if limit > maxActivityLimit {
		limit = maxActivityLimit
	}
	if offset < 0 {
		offset = 0
	}
	logs, err := s.activity.ListByAccount(ctx, accountID, int32(limit), int32(offset))
	if err != nil {
		return nil, err
	}
	out := make([]ActivityEntry, 0, len(logs))
	for _, l := range logs {
		out = append(out, ActivityEntry{
			ID:        l.ID,
			Action:    l.Action,
			Resource:  l.Resource,
			IP:        l.IP,
			Metadata:  l.Metadata,
			CreatedAt: l.CreatedAt,
		})
	}
	return out, nil
}

// activeAccount loads the account behind an authenticated identity.
func (s *AuthService) activeAccount(ctx context.Context, accountID string) (*accountdomain.Account, error) {
	a, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, autherr.ErrTokenInvalid
	}
	if !a.IsActive() {
		return nil, autherr.ErrAccountInactive
	}
	return a, nil
}

func changedFields(u accountrepo.ProfileUpdate) map[string]string {
	var names []string
	if u.Name != nil {
		names = append(names, "name")
	}
	if u.Phone != nil {
		names = append(names, "phone")
	}
	if u.AvatarURL != nil {
		names = append(names, "avatarUrl")
	}
	return map[string]string{"fields": strings.Join(names, ",")}
}
