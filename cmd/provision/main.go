// Command provision creates a credential record in the configured store.
//
//	provision -email cfo@example.com -name "Jane Doe" [-password ...]
//
// The password may instead come from PROVISION_PASSWORD so it stays out of
// shell history.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/finboard/finboard/backend/gateway/internal/common"
	"github.com/finboard/finboard/backend/gateway/internal/config"
	"github.com/finboard/finboard/backend/gateway/internal/users"
	"github.com/finboard/finboard/backend/gateway/pkg/logger"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))

	email := flag.String("email", "", "account email (unique)")
	name := flag.String("name", "", "display name")
	password := flag.String("password", "", "password (default: $PROVISION_PASSWORD)")
	flag.Parse()

	if *password == "" {
		*password = os.Getenv("PROVISION_PASSWORD")
	}
	if *email == "" || *password == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := users.Open(ctx, cfg)
	if err != nil {
		logger.Fatalf("credential store: %v", err)
	}
	defer store.Close()

	cred, err := users.NewService(store, cfg.Auth.BcryptCost).Provision(ctx, *email, *name, *password)
	if err != nil {
		if errors.Is(err, common.ErrUserAlreadyExists) {
			fmt.Fprintf(os.Stderr, "%s is already provisioned\n", common.NormalizeEmail(*email))
			store.Close()
			os.Exit(1)
		}
		logger.Fatalf("provision: %v", err)
	}
	fmt.Printf("provisioned %s (id %s)\n", cred.Email, cred.ID)
}
