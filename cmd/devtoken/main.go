// Command devtoken prints a bearer token for local testing against a server
// that shares AUTH_HMAC_SECRET.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"examgate/internal/auth"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	sub := flag.String("sub", "", "user id placed in the token subject")
	role := flag.String("role", auth.RoleStudent, "student, teacher, grader or admin")
	ttl := flag.Duration("ttl", 8*time.Hour, "token lifetime")
	flag.Parse()

	if *sub == "" {
		fmt.Fprintln(os.Stderr, "devtoken: -sub is required")
		flag.Usage()
		os.Exit(2)
	}

	v, err := auth.NewVerifier(os.Getenv("AUTH_HMAC_SECRET"))
	if err != nil {
		slog.Error("devtoken", slog.Any("err", err))
		os.Exit(1)
	}
	tok, err := v.Issue(auth.User{ID: *sub, Role: *role}, *ttl)
	if err != nil {
		slog.Error("devtoken", slog.Any("err", err))
		os.Exit(1)
	}
	fmt.Println(tok)
}
