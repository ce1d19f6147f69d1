package board

import (
	"context"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

// ProfileStore persists the single user profile.
type ProfileStore interface {
	LoadProfile(ctx context.Context) (domain.UserProfile, bool)
	SaveProfile(ctx context.Context, p domain.UserProfile) error
}

// Profiles holds the onboarded user. The board is usable only after
// onboarding completed once.
type Profiles struct {
	mu      sync.Mutex
	store   ProfileStore
	log     *log.Logger
	current *domain.UserProfile
}

// NewProfiles loads the stored profile, if any.
func NewProfiles(ctx context.Context, store ProfileStore, logger *log.Logger) *Profiles {
	if logger == nil {
		logger = log.StandardLogger()
	}
	p := &Profiles{store: store, log: logger}
	if store != nil {
		if prof, ok := store.LoadProfile(ctx); ok {
			p.current = &prof
		}
	}
	return p
}

// Get returns the current profile.
func (p *Profiles) Get() (domain.UserProfile, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return domain.UserProfile{}, false
	}
	return *p.current, true
}

// NeedsOnboarding reports whether no profile has been stored yet.
func (p *Profiles) NeedsOnboarding() bool {
	_, ok := p.Get()
	return !ok
}

// Onboard stores a new profile. The nickname is trimmed and must not be
// empty; a picture, when given, must be an image data URI.
func (p *Profiles) Onboard(ctx context.Context, nickname, profilePic string) (domain.UserProfile, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return domain.UserProfile{}, &domain.ValidationError{Field: "nickname", Message: "nickname is required"}
	}
	if profilePic != "" && !strings.HasPrefix(profilePic, "data:image/") {
		return domain.UserProfile{}, &domain.ValidationError{Field: "profilePic", Message: "profile picture must be an image data URI"}
	}
	prof := domain.UserProfile{Nickname: nickname, ProfilePic: profilePic}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = &prof
	if p.store != nil {
		if err := p.store.SaveProfile(ctx, prof); err != nil {
			p.log.WithError(err).Error("profile save failed")
		}
	}
	return prof, nil
}
