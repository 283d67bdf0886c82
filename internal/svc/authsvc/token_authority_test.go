package authsvc_test

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/tokengate/internal/domain"
	"github.com/mkrupp/tokengate/internal/svc/authsvc"
)

//nolint:gochecknoglobals
var (
	testSigningKey = []byte("test-signing-key-0123456789abcdef")
	testEpoch      = time.Unix(1_700_000_000, 0)
)

// testClock is a settable time source.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func newTestAuthority(t *testing.T, clock *testClock) *authsvc.TokenAuthority {
	t.Helper()

	authority, err := authsvc.NewTokenAuthorityWithClock(authsvc.TokenConfig{
		SigningKey: testSigningKey,
		Algorithm:  "HS256",
		DefaultTTL: 30 * time.Minute,
	}, clock.Now)
	require.NoError(t, err)

	return authority
}

func TestNewTokenAuthority(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     authsvc.TokenConfig
		wantErr bool
	}{
		{name: "HS256", cfg: authsvc.TokenConfig{SigningKey: testSigningKey, Algorithm: "HS256", DefaultTTL: time.Minute}},
		{name: "HS384", cfg: authsvc.TokenConfig{SigningKey: testSigningKey, Algorithm: "HS384", DefaultTTL: time.Minute}},
		{name: "HS512", cfg: authsvc.TokenConfig{SigningKey: testSigningKey, Algorithm: "HS512", DefaultTTL: time.Minute}},
		{name: "empty key", cfg: authsvc.TokenConfig{Algorithm: "HS256", DefaultTTL: time.Minute}, wantErr: true},
		{name: "zero ttl", cfg: authsvc.TokenConfig{SigningKey: testSigningKey, Algorithm: "HS256"}, wantErr: true},
		{name: "asymmetric algorithm", cfg: authsvc.TokenConfig{SigningKey: testSigningKey, Algorithm: "RS256", DefaultTTL: time.Minute}, wantErr: true},
		{name: "none algorithm", cfg: authsvc.TokenConfig{SigningKey: testSigningKey, Algorithm: "none", DefaultTTL: time.Minute}, wantErr: true},
		{name: "unknown algorithm", cfg: authsvc.TokenConfig{SigningKey: testSigningKey, Algorithm: "HS1", DefaultTTL: time.Minute}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			authority, err := authsvc.NewTokenAuthority(tt.cfg)
			if tt.wantErr {
				assert.ErrorIs(t, err, authsvc.ErrInvalidTokenConfig)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.cfg.Algorithm, authority.Algorithm())
		})
	}
}

func TestTokenAuthority_RoundTrip(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: testEpoch}
	authority := newTestAuthority(t, clock)

	tokenString, issued, err := authority.Issue("johndoe", 0)
	require.NoError(t, err)

	assert.Equal(t, "johndoe", issued.Subject)
	assert.NotEmpty(t, issued.ID)
	assert.Equal(t, testEpoch, issued.IssuedAt)
	assert.Equal(t, testEpoch.Add(30*time.Minute), issued.ExpiresAt)
	assert.Equal(t, 2, strings.Count(tokenString, "."), "compact JWS has three segments")

	verified, err := authority.Verify(tokenString)
	require.NoError(t, err)
	assert.Equal(t, issued, verified)

	_, again, err := authority.Issue("johndoe", 0)
	require.NoError(t, err)
	assert.NotEqual(t, issued.ID, again.ID)
}

func TestTokenAuthority_IssueTTL(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: testEpoch}
	authority := newTestAuthority(t, clock)

	_, token, err := authority.Issue("johndoe", 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, testEpoch.Add(5*time.Minute), token.ExpiresAt)

	_, token, err = authority.Issue("johndoe", -time.Second)
	require.NoError(t, err)
	assert.Equal(t, testEpoch.Add(30*time.Minute), token.ExpiresAt, "non-positive ttl selects default")

	_, _, err = authority.Issue("", 0)
	assert.ErrorIs(t, err, authsvc.ErrEmptySubject)
}

func TestTokenAuthority_ExpiryBoundary(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: testEpoch}
	authority := newTestAuthority(t, clock)

	ttl := 10 * time.Second

	tokenString, _, err := authority.Issue("johndoe", ttl)
	require.NoError(t, err)

	tests := []struct {
		name    string
		at      time.Time
		wantErr error
	}{
		{name: "at issue", at: testEpoch},
		{name: "just before expiry", at: testEpoch.Add(ttl - time.Second)},
		{name: "just after expiry", at: testEpoch.Add(ttl + time.Second), wantErr: domain.ErrTokenExpired},
		{name: "long after expiry", at: testEpoch.Add(24 * time.Hour), wantErr: domain.ErrTokenExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			at := &testClock{now: tt.at}
			verifier := newTestAuthority(t, at)

			_, err := verifier.Verify(tokenString)
			if tt.wantErr == nil {
				assert.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, domain.ErrUnauthorized)
			assert.NotErrorIs(t, err, domain.ErrTokenSignatureInvalid)
		})
	}
}

func flipSignatureBit(t *testing.T, tokenString string) string {
	t.Helper()

	parts := strings.Split(tokenString, ".")
	require.Len(t, parts, 3)

	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	require.NoError(t, err)

	sig[0] ^= 0x01
	parts[2] = base64.RawURLEncoding.EncodeToString(sig)

	return strings.Join(parts, ".")
}

// signatureBitFlips returns one token per bit of every character of the raw
// signature segment, each with exactly that bit inverted.
func signatureBitFlips(t *testing.T, tokenString string) []string {
	t.Helper()

	idx := strings.LastIndexByte(tokenString, '.')
	require.Positive(t, idx)

	tampered := make([]string, 0, 8*(len(tokenString)-idx-1))

	for pos := idx + 1; pos < len(tokenString); pos++ {
		for bit := range 8 {
			raw := []byte(tokenString)
			raw[pos] ^= 1 << bit
			tampered = append(tampered, string(raw))
		}
	}

	return tampered
}

func replacePayload(t *testing.T, tokenString, from, to string) string {
	t.Helper()

	parts := strings.Split(tokenString, ".")
	require.Len(t, parts, 3)

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)

	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(strings.Replace(string(payload), from, to, 1)))

	return strings.Join(parts, ".")
}

func signClaims(t *testing.T, method jwt.SigningMethod, key any, claims jwt.Claims) string {
	t.Helper()

	tokenString, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)

	return tokenString
}

func TestTokenAuthority_VerifyRejects(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: testEpoch}
	authority := newTestAuthority(t, clock)

	valid, _, err := authority.Issue("johndoe", 0)
	require.NoError(t, err)

	expired, _, err := authority.Issue("johndoe", time.Second)
	require.NoError(t, err)

	// Verified well after the short-lived token ran out
	later := newTestAuthority(t, &testClock{now: testEpoch.Add(time.Hour)})

	exp := jwt.NewNumericDate(testEpoch.Add(time.Hour))

	tests := []struct {
		name     string
		verifier *authsvc.TokenAuthority
		token    string
		wantErr  error
	}{
		{
			name:     "flipped signature bit",
			verifier: authority,
			token:    flipSignatureBit(t, valid),
			wantErr:  domain.ErrTokenSignatureInvalid,
		},
		{
			name:     "edited subject",
			verifier: authority,
			token:    replacePayload(t, valid, `"sub":"johndoe"`, `"sub":"admin"`),
			wantErr:  domain.ErrTokenSignatureInvalid,
		},
		{
			name:     "signed with another key",
			verifier: authority,
			token: signClaims(t, jwt.SigningMethodHS256, []byte("another-key-0123456789abcdef"),
				jwt.RegisteredClaims{Subject: "johndoe", ExpiresAt: exp}),
			wantErr: domain.ErrTokenSignatureInvalid,
		},
		{
			name:     "expired and tampered reports signature",
			verifier: later,
			token:    flipSignatureBit(t, expired),
			wantErr:  domain.ErrTokenSignatureInvalid,
		},
		{
			name:     "expired",
			verifier: later,
			token:    expired,
			wantErr:  domain.ErrTokenExpired,
		},
		{
			name:     "algorithm mismatch",
			verifier: authority,
			token: signClaims(t, jwt.SigningMethodHS512, testSigningKey,
				jwt.RegisteredClaims{Subject: "johndoe", ExpiresAt: exp}),
			wantErr: domain.ErrTokenMalformed,
		},
		{
			name:     "alg none",
			verifier: authority,
			token: signClaims(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType,
				jwt.RegisteredClaims{Subject: "johndoe", ExpiresAt: exp}),
			wantErr: domain.ErrTokenMalformed,
		},
		{
			name:     "missing subject",
			verifier: authority,
			token:    signClaims(t, jwt.SigningMethodHS256, testSigningKey, jwt.RegisteredClaims{ExpiresAt: exp}),
			wantErr:  domain.ErrTokenMalformed,
		},
		{
			name:     "missing expiry",
			verifier: authority,
			token:    signClaims(t, jwt.SigningMethodHS256, testSigningKey, jwt.RegisteredClaims{Subject: "johndoe"}),
			wantErr:  domain.ErrTokenMalformed,
		},
		{name: "empty token", verifier: authority, token: "", wantErr: domain.ErrTokenMalformed},
		{name: "garbage", verifier: authority, token: "not-a-jwt", wantErr: domain.ErrTokenMalformed},
		{name: "two segments", verifier: authority, token: "e30.e30", wantErr: domain.ErrTokenMalformed},
		{name: "bad base64", verifier: authority, token: "!!!.@@@.###", wantErr: domain.ErrTokenMalformed},
		{name: "signature not base64", verifier: authority, token: valid[:strings.LastIndexByte(valid, '.')+1] + "***", wantErr: domain.ErrTokenSignatureInvalid},
		{name: "extra segment after signature", verifier: authority, token: valid + ".e30", wantErr: domain.ErrTokenSignatureInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := tt.verifier.Verify(tt.token)
			require.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, domain.ErrUnauthorized)
			assert.True(t, domain.IsAuthFailure(err))
		})
	}
}

func TestTokenAuthority_EverySignatureBitFlipRejected(t *testing.T) {
	t.Parallel()

	for _, alg := range []string{"HS256", "HS384", "HS512"} {
		t.Run(alg, func(t *testing.T) {
			t.Parallel()

			authority, err := authsvc.NewTokenAuthorityWithClock(authsvc.TokenConfig{
				SigningKey: testSigningKey,
				Algorithm:  alg,
				DefaultTTL: 30 * time.Minute,
			}, (&testClock{now: testEpoch}).Now)
			require.NoError(t, err)

			valid, _, err := authority.Issue("johndoe", 0)
			require.NoError(t, err)

			for _, tampered := range signatureBitFlips(t, valid) {
				_, err := authority.Verify(tampered)
				require.ErrorIs(t, err, domain.ErrTokenSignatureInvalid, "token %q", tampered)
				assert.NotErrorIs(t, err, domain.ErrTokenMalformed, "token %q", tampered)
			}
		})
	}
}

func TestTokenAuthority_NonCanonicalSignatureTail(t *testing.T) {
	t.Parallel()

	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

	authority := newTestAuthority(t, &testClock{now: testEpoch})

	valid, _, err := authority.Issue("johndoe", 0)
	require.NoError(t, err)

	// 32 signature bytes leave the low 2 bits of the last character unused
	last := strings.IndexByte(alphabet, valid[len(valid)-1])
	require.GreaterOrEqual(t, last, 0)

	for _, mask := range []int{1, 2, 3} {
		tampered := valid[:len(valid)-1] + string(alphabet[last^mask])

		_, err := authority.Verify(tampered)
		assert.ErrorIs(t, err, domain.ErrTokenSignatureInvalid, "mask %d", mask)
	}
}

func TestTokenAuthority_DistinctFailureKinds(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: testEpoch}
	authority := newTestAuthority(t, clock)

	valid, _, err := authority.Issue("johndoe", 0)
	require.NoError(t, err)

	_, err = authority.Verify(flipSignatureBit(t, valid))
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrTokenMalformed)
	assert.NotErrorIs(t, err, domain.ErrTokenExpired)

	_, err = authority.Verify("not-a-jwt")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrTokenSignatureInvalid)
	assert.NotErrorIs(t, err, domain.ErrTokenExpired)
}
