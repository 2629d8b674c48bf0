package storage

import (
	"context"
	"errors"
	"strconv"
)

// Preference keys.
const (
	prefPremium    = "prefs/premium"
	prefOnboarding = "prefs/onboarding_complete"
	prefUsername   = "prefs/username"
)

// Prefs stores the local user preferences that gate sync.
type Prefs struct {
	kv KVEngine
}

// NewPrefs creates a preference store on kv.
func NewPrefs(kv KVEngine) *Prefs {
	return &Prefs{kv: kv}
}

// Premium reports the local premium entitlement flag. Unset means false.
func (p *Prefs) Premium(ctx context.Context) (bool, error) {
	return p.getBool(ctx, prefPremium)
}

// SetPremium sets the local premium entitlement flag.
func (p *Prefs) SetPremium(ctx context.Context, v bool) error {
	return p.kv.Set(ctx, []byte(prefPremium), []byte(strconv.FormatBool(v)))
}

// OnboardingComplete reports whether onboarding has finished. Unset means false.
func (p *Prefs) OnboardingComplete(ctx context.Context) (bool, error) {
	return p.getBool(ctx, prefOnboarding)
}

// SetOnboardingComplete records onboarding state.
func (p *Prefs) SetOnboardingComplete(ctx context.Context, v bool) error {
	return p.kv.Set(ctx, []byte(prefOnboarding), []byte(strconv.FormatBool(v)))
}

// Username returns the remembered username, or "" when unset.
func (p *Prefs) Username(ctx context.Context) (string, error) {
	v, err := p.kv.Get(ctx, []byte(prefUsername))
	if errors.Is(err, ErrKeyNotFound) {
		return "", nil
	}
	return string(v), err
}

// SetUsername remembers the username used for premium checks.
func (p *Prefs) SetUsername(ctx context.Context, username string) error {
	return p.kv.Set(ctx, []byte(prefUsername), []byte(username))
}

func (p *Prefs) getBool(ctx context.Context, key string) (bool, error) {
	v, err := p.kv.Get(ctx, []byte(key))
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	b, err := strconv.ParseBool(string(v))
	if err != nil {
		// A malformed flag is treated as unset.
		return false, nil
	}
	return b, nil
}
