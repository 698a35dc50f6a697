// Command admintoken mints an admin bearer token for the /admin routes using
// the configured admin.jwt_secret.
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ncecere/kereru_gateway/internal/auth"
	"github.com/ncecere/kereru_gateway/internal/config"
)

func main() {
	subject := flag.String("subject", "ops", "token subject")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to admin.token_ttl)")
	configFile := flag.String("config", "", "config file path")
	genSecret := flag.Bool("gen-secret", false, "print a random signing secret and exit")
	flag.Parse()

	if *genSecret {
		secret, err := auth.GenerateSecret(32)
		if err != nil {
			log.Fatalf("generate secret: %v", err)
		}
		fmt.Println(secret)
		return
	}

	cfg, err := config.Load(config.Options{ConfigFile: *configFile})
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if strings.TrimSpace(cfg.Admin.JWTSecret) == "" {
		log.Fatalf("admin.jwt_secret is not set (KERERU_ADMIN_JWT_SECRET)")
	}
	lifetime := cfg.Admin.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}
	tokens, err := auth.NewTokenManager(cfg.Admin.JWTSecret, lifetime, cfg.Admin.Issuer)
	if err != nil {
		log.Fatalf("init tokens: %v", err)
	}
	token, exp, err := tokens.Issue(*subject)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	fmt.Println(token)
	log.Printf("expires %s", exp.UTC().Format(time.RFC3339))
}
