// Command devtoken prints a signed access token for local testing.
package main

import (
	"flag"
	"fmt"
	"os"

	"campustrack/internal/auth"
	"campustrack/internal/config"
	"campustrack/internal/identity"
)

func main() {
	cfg := config.Load()

	uid7 := flag.String("uid7", "", "7-digit user id")
	role := flag.String("role", "student", "student, faculty or admin")
	university := flag.String("university", "", "university id")
	profile := flag.String("profile", "", "student or faculty profile id")
	user := flag.String("user", "", "user id (token subject)")
	ttl := flag.Duration("ttl", cfg.AccessTTL, "token lifetime")
	flag.Parse()

	actor := identity.Actor{
		UserID:       *user,
		UID7:         *uid7,
		Role:         identity.Role(*role),
		UniversityID: *university,
		ProfileRef:   *profile,
	}
	if !actor.Role.Valid() || !identity.ValidUID7(actor.UID7) {
		fmt.Fprintln(os.Stderr, "devtoken: -uid7 must be 7 digits and -role one of student, faculty, admin")
		os.Exit(2)
	}

	token, exp, err := auth.Issue(actor, cfg.JWTIssuer, cfg.JWTSigningKey, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "devtoken:", err)
		os.Exit(1)
	}
	fmt.Println(token)
	fmt.Fprintln(os.Stderr, "expires", exp.Format("2006-01-02T15:04:05Z07:00"))
}
