// Command gen-token prints an HS256 token accepted by the API in test mode
// (AUTH0_TEST_MODE=1 with TEST_JWT_SECRET).
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v4"
	log "github.com/sirupsen/logrus"

	"kata-board/domain"
)

type tokenRequest struct {
	CC        string
	Role      string
	RoleClaim string
	Audience  string
	Issuer    string
	TTL       time.Duration
}

func main() {
	var (
		role     = flag.String("role", "DEV", "role claim value")
		claim    = flag.String("claim", "role", "name of the role claim (ROLE_CLAIM)")
		audience = flag.String("aud", "", "optional audience")
		issuer   = flag.String("iss", "", "optional issuer")
		ttl      = flag.Duration("ttl", time.Hour, "token lifetime")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: gen-token [flags] <cc>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	tok, err := signToken([]byte(os.Getenv("TEST_JWT_SECRET")), tokenRequest{
		CC:        flag.Arg(0),
		Role:      *role,
		RoleClaim: *claim,
		Audience:  *audience,
		Issuer:    *issuer,
		TTL:       *ttl,
	})
	if err != nil {
		log.Fatalf("generate token: %v", err)
	}
	fmt.Print(tok)
}

func signToken(secret []byte, req tokenRequest) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("TEST_JWT_SECRET must be set")
	}
	if req.CC == "" {
		return "", errors.New("cc is required")
	}
	role := domain.NormalizeRole(req.Role)
	if !role.Known() {
		return "", fmt.Errorf("unknown role %q", req.Role)
	}
	if req.RoleClaim == "" {
		req.RoleClaim = "role"
	}
	if req.TTL <= 0 {
		req.TTL = time.Hour
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":         req.CC,
		req.RoleClaim: role.String(),
		"iat":         now.Unix(),
		"exp":         now.Add(req.TTL).Unix(),
	}
	if req.Audience != "" {
		claims["aud"] = req.Audience
	}
	if req.Issuer != "" {
		claims["iss"] = req.Issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
