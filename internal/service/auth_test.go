package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/identity-service/internal/repository"
)

func TestAuth_EndToEndRefreshRotation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	aliceID := e.seedUser(t, "alice", "Str0ngPass!")

	tok, err := e.auth.Login(ctx, "alice", "Str0ngPass!", "UA1")
	require.NoError(t, err)

	claims, err := e.tokenizer.ParseRefresh(tok.RefreshToken)
	require.NoError(t, err)
	sub, err := claims.SubjectID()
	require.NoError(t, err)
	require.Equal(t, aliceID, sub)

	tok2, err := e.auth.RefreshTokens(ctx, aliceID, claims.Roles, tok.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, tok.RefreshToken, tok2.RefreshToken)

	_, err = e.auth.RefreshTokens(ctx, aliceID, claims.Roles, tok.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuth_LoginFailuresAreIndistinguishable(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seedUser(t, "alice", "Str0ngPass!")

	_, unknown := e.auth.Login(ctx, "mallory", "Str0ngPass!", "UA")
	_, wrong := e.auth.Login(ctx, "alice", "wrong-Password1", "UA")

	require.ErrorIs(t, unknown, ErrInvalidCredentials)
	require.ErrorIs(t, wrong, ErrInvalidCredentials)
	assert.Equal(t, unknown.Error(), wrong.Error())
	assert.Empty(t, e.history.entries)
	assert.Empty(t, e.events.events)
}

func TestAuth_LoginCarriesRoleSnapshot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.seedUser(t, "bob-the-admin", "Sup3rSecret", "admin", "user")

	pair, err := e.auth.Login(ctx, "bob-the-admin", "Sup3rSecret", "curl/8")
	require.NoError(t, err)

	claims, err := e.tokenizer.ParseAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "user"}, claims.Roles)

	require.Len(t, e.events.events, 1)
	ev := e.events.events[0]
	assert.Equal(t, id, ev.UserID)
	assert.Equal(t, "bob-the-admin", ev.Login)
	assert.Equal(t, claims.ID, ev.TokenID)
	assert.Equal(t, "curl/8", ev.UserAgent)
}

func TestAuth_LoginHistoryNewestFirst(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.seedUser(t, "alice", "Str0ngPass!")

	for _, ua := range []string{"UA1", "UA2", "UA3"} {
		_, err := e.auth.Login(ctx, "alice", "Str0ngPass!", ua)
		require.NoError(t, err)
		e.clock.Advance(time.Minute)
	}

	hist, err := e.auth.History(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, "UA3", hist[0].UserAgent)
	assert.Equal(t, "UA1", hist[2].UserAgent)
	assert.True(t, hist[0].AuthDatetime.After(hist[1].AuthDatetime))
}

func TestAuth_LoginSurvivesHistoryAndEventFailures(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seedUser(t, "alice", "Str0ngPass!")
	e.history.err = repository.ErrStoreUnavailable
	e.events.err = errors.New("broker down")

	pair, err := e.auth.Login(ctx, "alice", "Str0ngPass!", "UA1")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
}

func TestAuth_LoginStoreUnavailable(t *testing.T) {
	e := newEnv(t)
	e.seedUser(t, "alice", "Str0ngPass!")
	e.mr.Close()

	_, err := e.auth.Login(context.Background(), "alice", "Str0ngPass!", "UA1")
	assert.ErrorIs(t, err, repository.ErrStoreUnavailable)
}

func TestAuth_LogoutBlocklistsForRemainingLifetime(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seedUser(t, "alice", "Str0ngPass!")

	pair, err := e.auth.Login(ctx, "alice", "Str0ngPass!", "UA1")
	require.NoError(t, err)
	claims, err := e.tokenizer.ParseAccess(pair.AccessToken)
	require.NoError(t, err)

	e.clock.Advance(5 * time.Minute)
	remaining := claims.Remaining(e.clock.Now())
	res, err := e.auth.Logout(ctx, claims.ID, remaining)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int64(10*60), res.Expiry)
	assert.Equal(t, 10*time.Minute, e.mr.TTL("auth:blocklist:"+claims.ID))

	ok, err := e.tokenizer.VerifyNotBlocklisted(ctx, claims.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	// a second logout with a recomputed ttl is harmless
	res, err = e.auth.Logout(ctx, claims.ID, claims.Remaining(e.clock.Now()))
	require.NoError(t, err)
	assert.True(t, res.Success)

	e.mr.FastForward(10*time.Minute + time.Second)
	ok, err = e.tokenizer.VerifyNotBlocklisted(ctx, claims.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAuth_LogoutExpiredTokenSkipsWrite(t *testing.T) {
	e := newEnv(t)
	res, err := e.auth.Logout(context.Background(), "jti-x", 0)
	require.NoError(t, err)
	assert.Equal(t, LogoutResult{Success: true}, res)
	assert.False(t, e.mr.Exists("auth:blocklist:jti-x"))

	_, err = e.auth.Logout(context.Background(), "", time.Minute)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuth_RegisterAndChangePassword(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	u, err := e.auth.Register(ctx, "new-user-01", "Passw0rd!", "new@example.com")
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.NotEqual(t, "Passw0rd!", u.PasswordHash)

	_, err = e.auth.Register(ctx, "new-user-01", "Passw0rd!", "")
	assert.ErrorIs(t, err, repository.ErrIntegrityViolation)

	_, err = e.auth.Register(ctx, "short", "Passw0rd!", "")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = e.auth.Register(ctx, "new-user-02", "Passw0rd!", strings.Repeat("a", 251)+"@x.io")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "email must be at most 255 characters", verr.Reason)
	_, err = e.auth.Register(ctx, "new-user-02", "Passw0rd!", strings.Repeat("a", 250)+"@x.io")
	assert.NoError(t, err)

	err = e.auth.ChangePassword(ctx, u.ID, "not-the-password", "N3wPassword")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	err = e.auth.ChangePassword(ctx, u.ID, "Passw0rd!", "weakweak")
	assert.ErrorAs(t, err, &verr)

	require.NoError(t, e.auth.ChangePassword(ctx, u.ID, "Passw0rd!", "N3wPassword"))
	_, err = e.auth.Login(ctx, "new-user-01", "Passw0rd!", "UA")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = e.auth.Login(ctx, "new-user-01", "N3wPassword", "UA")
	assert.NoError(t, err)
}

func TestCheckPassword(t *testing.T) {
	cases := []struct {
		password string
		ok       bool
	}{
		{"Str0ngPass!", true},
		{"12345!!!", true},
		{"Short1!", false},
		{"12345678", false},
		{"abcdefgh", false},
		{"abcdefg1", false},
		{"ABCDEFG1", false},
		{"AbcdefgH", false},
		{"Abcdefg1", true},
	}
	for _, tc := range cases {
		t.Run(tc.password, func(t *testing.T) {
			err := CheckPassword(tc.password)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}
