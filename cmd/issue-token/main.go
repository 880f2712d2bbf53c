// Command issue-token signs an access token with the configured JWT secret. It is meant for
// operations and local testing; production tokens come from the identity service.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/foodforall-dc/delivery-api/internal/models"
	"github.com/foodforall-dc/delivery-api/internal/service"
	"github.com/foodforall-dc/delivery-api/pkg/config"
	"github.com/foodforall-dc/delivery-api/pkg/logger"
)

func main() {
	userID := flag.String("user", "", "user id placed in the token")
	email := flag.String("email", "", "email placed in the token")
	role := flag.String("role", string(models.RoleStaff), "ADMIN, STAFF or CASE_WORKER")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "issue-token: -user is required")
		flag.Usage()
		os.Exit(2)
	}
	userRole := models.UserRole(*role)
	if !userRole.CanSchedule() {
		log.Fatalf("issue-token: role %q cannot use the scheduling API", *role)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	auth := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: *ttl,
		Issuer:            cfg.JWT.Issuer,
	})
	token, expires, err := auth.IssueToken(*userID, *email, userRole)
	if err != nil {
		logr.Sugar().Fatalw("failed to issue token", "error", err)
	}
	logr.Sugar().Infow("token issued", "user_id", *userID, "role", userRole, "expires_at", expires.Format(time.RFC3339))
	fmt.Println(token)
}
