package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"yusrai/internal/config"

	"github.com/spf13/cobra"
)

var (
	flagUserID   string
	flagTTLMin   int
	flagNoExpiry bool
)

// tokenCmd generates an HS256 JWT for testing/admin usage.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate a JWT (HS256) for API authentication",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		secret := cfg.JWT.Secret
		if secret == "" {
			return fmt.Errorf("jwt.secret is empty; set it in config")
		}
		if flagUserID == "" {
			return fmt.Errorf("--user is required")
		}

		now := time.Now()
		payload := map[string]interface{}{
			"sub":     flagUserID,
			"user_id": flagUserID,
			"iat":     now.Unix(),
		}
		if !flagNoExpiry {
			ttl := time.Duration(flagTTLMin) * time.Minute
			if ttl <= 0 {
				ttl = cfg.JWT.ExpiresIn
			}
			payload["exp"] = now.Add(ttl).Unix()
		}

		header := map[string]string{"alg": "HS256", "typ": "JWT"}
		hb, _ := json.Marshal(header)
		pb, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal claims: %w", err)
		}
		h := base64.RawURLEncoding.EncodeToString(hb)
		p := base64.RawURLEncoding.EncodeToString(pb)
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(h + "." + p))
		token := h + "." + p + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&flagUserID, "user", "", "user id to embed as sub/user_id")
	tokenCmd.Flags().IntVar(&flagTTLMin, "ttl", 0, "token lifetime in minutes (default from config)")
	tokenCmd.Flags().BoolVar(&flagNoExpiry, "no-expiry", false, "omit the exp claim")
	rootCmd.AddCommand(tokenCmd)
}
