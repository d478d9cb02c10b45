package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/akawula/QualityMatic/cmd/server/auth"
	"github.com/akawula/QualityMatic/internal/logging"
)

// run mints a server token for USERNAME signed with JWT_SECRET and prints it to out.
// TOKEN_TTL takes a Go duration and defaults to 24h.
func run(getenv func(string) string, out io.Writer) error {
	secret := getenv("JWT_SECRET")
	username := getenv("USERNAME")
	if secret == "" || username == "" {
		return errors.New("JWT_SECRET and USERNAME environment variables must be set")
	}
	if len(secret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 characters")
	}

	ttl := auth.DefaultTTL
	if raw := getenv("TOKEN_TTL"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid TOKEN_TTL %q: %w", raw, err)
		}
		ttl = parsed
	}

	token, err := auth.New(secret).GenerateJWT(username, ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

func main() {
	logger := logging.NewWithWriter(os.Stderr)

	if err := run(os.Getenv, os.Stdout); err != nil {
		logger.Error("Failed to mint token", "error", err)
		os.Exit(1)
	}
	logger.Info("Token minted", "username", os.Getenv("USERNAME"))
}
