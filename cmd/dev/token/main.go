// Command token mints HS256 bearer tokens for local testing of the alert API
// and the admin console.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/garnizeh/campuscare/internal/config"
)

func main() {
	configPath := flag.String("config", "", "Path to config YAML file")
	sub := flag.String("sub", "", "User id (required)")
	email := flag.String("email", "", "Email claim")
	name := flag.String("name", "", "Display name claim")
	roll := flag.String("roll", "", "Roll number claim")
	userType := flag.String("type", "student", "User type claim (student, staff, admin)")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	if *sub == "" {
		fmt.Fprintln(os.Stderr, "-sub is required")
		os.Exit(2)
	}
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	claims := jwt.MapClaims{
		"sub":       *sub,
		"user_type": *userType,
		"iat":       time.Now().Unix(),
		"exp":       time.Now().Add(*ttl).Unix(),
	}
	for k, v := range map[string]string{"email": *email, "name": *name, "roll_number": *roll} {
		if v != "" {
			claims[k] = v
		}
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Sign error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
