package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Dosada05/bracket-engine/models"
	"github.com/Dosada05/bracket-engine/utils"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

// token выпускает JWT для ручной работы с API (операторы, локальная отладка).
func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "token",
		Usage: "issue a bearer token accepted by the bracket engine API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "secret", EnvVars: []string{"JWT_SECRET_KEY"}, Required: true, Usage: "HMAC signing secret"},
			&cli.StringFlag{Name: "user", Usage: "user id (random when omitted)"},
			&cli.StringFlag{Name: "role", Value: string(models.RolePlayer), Usage: "admin, organizer or player"},
			&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour, Usage: "token lifetime"},
		},
		Action: func(c *cli.Context) error {
			role := models.UserRole(c.String("role"))
			if !role.Valid() {
				return fmt.Errorf("unknown role %q", role)
			}
			userID := uuid.New()
			if raw := c.String("user"); raw != "" {
				parsed, err := uuid.Parse(raw)
				if err != nil {
					return fmt.Errorf("invalid user id: %w", err)
				}
				userID = parsed
			}
			if c.Duration("ttl") <= 0 {
				return errors.New("ttl must be positive")
			}

			token, err := utils.GenerateJWT([]byte(c.String("secret")), userID, string(role), c.Duration("ttl"))
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}
			fmt.Fprintf(os.Stderr, "user_id=%s role=%s\n", userID, role)
			fmt.Println(token)
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
