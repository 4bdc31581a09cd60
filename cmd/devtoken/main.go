// Command devtoken mints a JWT for local development, in place of the Pi
// authentication flow.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/decimalcoins/broom-chat/internal/auth"
	"github.com/decimalcoins/broom-chat/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	userID := flag.String("user", "", "user id (random uuid when empty)")
	username := flag.String("name", "pioneer", "username")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *userID == "" {
		*userID = uuid.NewString()
	}

	token, err := auth.GenerateTokenTTL(*userID, *username, cfg.JWTSecret, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(token)
}
