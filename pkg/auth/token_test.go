package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vouchr/storefront-backend/pkg/config"
	"github.com/vouchr/storefront-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "secret",
		Issuer:            "vouchr",
		ExpirationMinutes: 30,
	}
}

func TestMintAndParseOperatorToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()
	operatorID := uuid.New()

	token, err := MintOperatorToken(cfg, now, OperatorTokenPayload{
		OperatorID: operatorID,
		Name:       " ops on call ",
		Role:       enums.OperatorRoleOperator,
	})
	require.NoError(t, err)

	claims, err := ParseOperatorToken(cfg, token)
	require.NoError(t, err)
	require.Equal(t, operatorID, claims.OperatorID)
	require.Equal(t, "ops on call", claims.Name)
	require.Equal(t, enums.OperatorRoleOperator, claims.Role)
	require.Equal(t, cfg.Issuer, claims.Issuer)
	require.Equal(t, operatorID.String(), claims.Subject)
	require.NotEmpty(t, claims.ID)
	require.WithinDuration(t, now.Add(30*time.Minute), claims.ExpiresAt.Time, time.Second)
}

func TestMintOperatorTokenValidation(t *testing.T) {
	now := time.Now()
	cases := map[string]struct {
		cfg     config.JWTConfig
		payload OperatorTokenPayload
	}{
		"missing secret": {
			cfg:     config.JWTConfig{Issuer: "vouchr", ExpirationMinutes: 1},
			payload: OperatorTokenPayload{OperatorID: uuid.New(), Role: enums.OperatorRoleAdmin},
		},
		"non positive ttl": {
			cfg:     config.JWTConfig{Secret: "s", Issuer: "vouchr"},
			payload: OperatorTokenPayload{OperatorID: uuid.New(), Role: enums.OperatorRoleAdmin},
		},
		"missing operator": {
			cfg:     testJWTConfig(),
			payload: OperatorTokenPayload{Role: enums.OperatorRoleAdmin},
		},
		"bad role": {
			cfg:     testJWTConfig(),
			payload: OperatorTokenPayload{OperatorID: uuid.New(), Role: "customer"},
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := MintOperatorToken(tc.cfg, now, tc.payload)
			require.Error(t, err)
		})
	}
}

func TestParseOperatorTokenRejects(t *testing.T) {
	cfg := testJWTConfig()

	expired, err := MintOperatorToken(cfg, time.Now().Add(-2*time.Hour), OperatorTokenPayload{
		OperatorID: uuid.New(),
		Role:       enums.OperatorRoleAdmin,
	})
	require.NoError(t, err)
	_, err = ParseOperatorToken(cfg, expired)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)

	valid, err := MintOperatorToken(cfg, time.Now(), OperatorTokenPayload{
		OperatorID: uuid.New(),
		Role:       enums.OperatorRoleAdmin,
	})
	require.NoError(t, err)

	other := cfg
	other.Secret = "another"
	_, err = ParseOperatorToken(other, valid)
	require.Error(t, err)

	other = cfg
	other.Issuer = "someone-else"
	_, err = ParseOperatorToken(other, valid)
	require.Error(t, err)
}
