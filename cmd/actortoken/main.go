// Command actortoken prints a bearer token for a profile, signed with the
// server's JWT settings. It is meant for local runs and smoke tests.
//
//	JWT_SIGNING_KEY=... actortoken -profile 6f1c... -ttl 2h
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	jwttoken "habitat/internal/jwt_token"
	"habitat/internal/platform/config"
	id "habitat/pkg/domain"
)

func main() {
	profile := flag.String("profile", "", "profile id the token acts as")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	if err := run(*profile, *ttl); err != nil {
		fmt.Fprintln(os.Stderr, "actortoken:", err)
		os.Exit(1)
	}
}

func run(profile string, ttl time.Duration) error {
	profileID, err := id.ParseProfileID(profile)
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	token, err := jwttoken.New(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience).Issue(profileID, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
