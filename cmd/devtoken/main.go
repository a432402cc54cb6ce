// Command devtoken mints a bearer token for local testing against the API.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/exampaper-backend/internal/platform/auth"
	"github.com/yungbote/exampaper-backend/internal/platform/envutil"
	"github.com/yungbote/exampaper-backend/internal/domain/identity"
)

func main() {
	role := flag.String("role", string(identity.RoleFaculty), "caller role (admin|faculty)")
	id := flag.String("id", "", "caller id; random when empty")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	secret := envutil.String("JWT_SECRET_KEY", "")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET_KEY is required")
		os.Exit(2)
	}

	callerID := uuid.New()
	if *id != "" {
		parsed, err := uuid.Parse(*id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -id: %v\n", err)
			os.Exit(2)
		}
		callerID = parsed
	}
	r := identity.ParseRole(*role)
	if r == "" {
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(2)
	}

	tok, err := auth.Sign(secret, identity.Caller{ID: callerID, Role: r}, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
