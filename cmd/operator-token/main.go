// Command operator-token mints a signed JWT for the operator API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/vouchr/storefront-backend/pkg/auth"
	"github.com/vouchr/storefront-backend/pkg/config"
	"github.com/vouchr/storefront-backend/pkg/enums"
	"github.com/vouchr/storefront-backend/pkg/logger"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "operator-token", Output: os.Stderr})

	_ = godotenv.Load()

	operator := flag.String("operator-id", "", "operator uuid (random when empty)")
	name := flag.String("name", "", "operator display name")
	role := flag.String("role", string(enums.OperatorRoleOperator), "operator role: admin|operator")
	flag.Parse()

	var jwtCfg config.JWTConfig
	if err := envconfig.Process("", &jwtCfg); err != nil {
		logg.Error(ctx, "failed to load jwt config", err)
		os.Exit(1)
	}

	parsedRole, err := enums.ParseOperatorRole(*role)
	if err != nil {
		logg.Error(ctx, "invalid role", err)
		os.Exit(1)
	}

	operatorID := uuid.New()
	if *operator != "" {
		operatorID, err = uuid.Parse(*operator)
		if err != nil {
			logg.Error(ctx, "invalid operator id", err)
			os.Exit(1)
		}
	}

	token, err := auth.MintOperatorToken(jwtCfg, time.Now().UTC(), auth.OperatorTokenPayload{
		OperatorID: operatorID,
		Name:       *name,
		Role:       parsedRole,
	})
	if err != nil {
		logg.Error(ctx, "failed to mint token", err)
		os.Exit(1)
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"operator_id":        operatorID.String(),
		"actor_role":         parsedRole,
		"expiration_minutes": jwtCfg.ExpirationMinutes,
	}), "operator token minted")
	fmt.Println(token)
}
