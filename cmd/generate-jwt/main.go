package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"bridge-backend/internal/handlers"
)

func main() {
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "HS256 secret (default: $JWT_SECRET)")
	issuer := flag.String("issuer", "bridge-backend", "token issuer, must match auth.issuer")
	operator := flag.String("operator", "operator", "operator name recorded in the token")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	tokenString, err := handlers.GenerateOperatorToken(*secret, *issuer, *operator, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("============================================================")
	fmt.Println("Operator JWT")
	fmt.Println("============================================================")
	fmt.Println()
	fmt.Println(tokenString)
	fmt.Println()
	fmt.Printf("  Operator: %s\n", *operator)
	fmt.Printf("  Issuer:   %s\n", *issuer)
	fmt.Printf("  Expires:  %s\n", time.Now().Add(*ttl).Format(time.RFC3339))
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  curl -X POST -H 'Authorization: Bearer %s' http://localhost:8080/api/chains/97/refresh\n", tokenString)
}
