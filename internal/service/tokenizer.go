package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/iliyamo/identity-service/internal/model"
	"github.com/iliyamo/identity-service/internal/utils"
)

// TokenStore is the slice of the expiring key-value store the Tokenizer
// needs.  repository.KVStore satisfies it.
type TokenStore interface {
	SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error
	GetByKey(ctx context.Context, key string) (string, bool, error)
	CompareAndSwap(ctx context.Context, key, expected, value string, ttl time.Duration) (bool, error)
}

const blocklistSentinel = "1"

func refreshKey(subjectID uint64) string { return "refresh:" + strconv.FormatUint(subjectID, 10) }
func blocklistKey(jti string) string     { return "blocklist:" + jti }

// Tokenizer issues access/refresh pairs and keeps exactly one valid
// refresh token per subject in the key-value store.
type Tokenizer struct {
	store      TokenStore
	signer     *utils.Signer
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenizer(store TokenStore, signer *utils.Signer, accessTTL, refreshTTL time.Duration) *Tokenizer {
	return &Tokenizer{store: store, signer: signer, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// Issue signs a new pair and records its refresh token as the subject's only
// valid one, overwriting whatever was there.
func (t *Tokenizer) Issue(ctx context.Context, subjectID uint64, roles []string) (model.TokenPair, error) {
	pair, _, err := t.issue(ctx, subjectID, roles)
	return pair, err
}

func (t *Tokenizer) issue(ctx context.Context, subjectID uint64, roles []string) (model.TokenPair, *utils.Claims, error) {
	pair, access, err := t.sign(subjectID, roles)
	if err != nil {
		return model.TokenPair{}, nil, err
	}
	if err := t.store.SetWithExpiry(ctx, refreshKey(subjectID), pair.RefreshToken, t.refreshTTL); err != nil {
		return model.TokenPair{}, nil, fmt.Errorf("store refresh token: %w", err)
	}
	return pair, access, nil
}

// Refresh rotates the pair when presented is the subject's current refresh
// token.  The swap is atomic: of several concurrent calls presenting the
// same token exactly one succeeds, the rest get ErrInvalidToken.
func (t *Tokenizer) Refresh(ctx context.Context, subjectID uint64, presented string, roles []string) (model.TokenPair, error) {
	if presented == "" {
		return model.TokenPair{}, ErrInvalidToken
	}
	current, ok, err := t.store.GetByKey(ctx, refreshKey(subjectID))
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("load refresh token: %w", err)
	}
	if !ok || current != presented {
		return model.TokenPair{}, ErrInvalidToken
	}

	pair, _, err := t.sign(subjectID, roles)
	if err != nil {
		return model.TokenPair{}, err
	}
	swapped, err := t.store.CompareAndSwap(ctx, refreshKey(subjectID), presented, pair.RefreshToken, t.refreshTTL)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	if !swapped {
		return model.TokenPair{}, ErrInvalidToken
	}
	return pair, nil
}

// VerifyNotBlocklisted reports true when jti has not been logged out.
func (t *Tokenizer) VerifyNotBlocklisted(ctx context.Context, jti string) (bool, error) {
	_, found, err := t.store.GetByKey(ctx, blocklistKey(jti))
	if err != nil {
		return false, fmt.Errorf("check blocklist: %w", err)
	}
	return !found, nil
}

// Blocklist rejects jti for ttl.
func (t *Tokenizer) Blocklist(ctx context.Context, jti string, ttl time.Duration) error {
	if err := t.store.SetWithExpiry(ctx, blocklistKey(jti), blocklistSentinel, ttl); err != nil {
		return fmt.Errorf("blocklist %s: %w", jti, err)
	}
	return nil
}

// ParseAccess validates an access token's signature, expiry and type.
// Blocklisting is checked separately.
func (t *Tokenizer) ParseAccess(raw string) (*utils.Claims, error) {
	return t.parse(raw, utils.TokenTypeAccess)
}

// ParseRefresh validates a refresh token's signature, expiry and type.
func (t *Tokenizer) ParseRefresh(raw string) (*utils.Claims, error) {
	return t.parse(raw, utils.TokenTypeRefresh)
}

func (t *Tokenizer) parse(raw, typ string) (*utils.Claims, error) {
	claims, err := t.signer.Parse(raw, typ)
	if err != nil {
		if errors.Is(err, utils.ErrTokenInvalid) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return nil, err
	}
	return claims, nil
}

func (t *Tokenizer) sign(subjectID uint64, roles []string) (model.TokenPair, *utils.Claims, error) {
	access, accessClaims, err := t.signer.Sign(subjectID, roles, utils.TokenTypeAccess, t.accessTTL)
	if err != nil {
		return model.TokenPair{}, nil, err
	}
	refresh, _, err := t.signer.Sign(subjectID, roles, utils.TokenTypeRefresh, t.refreshTTL)
	if err != nil {
		return model.TokenPair{}, nil, err
	}
	return model.TokenPair{AccessToken: access, RefreshToken: refresh}, accessClaims, nil
}
