// tokengen prints the watermark color token for a given second, or a
// control-API bearer token. Debug tooling; mirrors what the validator
// computes internally.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/technosupport/ts-aegis/internal/tokens"
	"github.com/technosupport/ts-aegis/internal/watermark"
)

func main() {
	second := flag.Int64("second", time.Now().Unix(), "Unix second to derive the color token for")
	jwtSubject := flag.String("jwt", "", "Issue a bearer token for this subject instead")
	role := flag.String("role", "operator", "Role claim for the bearer token")
	ttl := flag.Duration("ttl", time.Hour, "Bearer token lifetime")
	flag.Parse()

	if *jwtSubject != "" {
		secret := os.Getenv("AEGIS_JWT_SECRET")
		if secret == "" {
			log.Fatal("AEGIS_JWT_SECRET is not set")
		}
		token, err := tokens.NewManager(secret).GenerateToken(*jwtSubject, *role, *ttl)
		if err != nil {
			log.Fatalf("token generation failed: %v", err)
		}
		fmt.Println(token)
		return
	}

	secret := os.Getenv("AEGIS_WATERMARK_SECRET")
	if len(secret) < watermark.MinSecretLen {
		log.Fatalf("AEGIS_WATERMARK_SECRET must be set (min %d bytes)", watermark.MinSecretLen)
	}

	c := watermark.Token([]byte(secret), *second)
	fmt.Printf("second=%d rgb=(%d,%d,%d) hex=#%02x%02x%02x\n", *second, c.R, c.G, c.B, c.R, c.G, c.B)
}
