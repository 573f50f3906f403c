package cmd

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"CoverLedger/internal/claims"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// Attestation helpers. These run offline against a local Ed25519 key:
// the node only ever sees the signed tokens.

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an Ed25519 attestation key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return err
		}
		fmt.Printf("public_key:  %s\n", base64.StdEncoding.EncodeToString(pub))
		fmt.Printf("private_key: %s\n", base64.StdEncoding.EncodeToString(priv))
		return nil
	},
}

var signPriceCmd = &cobra.Command{
	Use:   "sign-price <asset-token> <price> <deadline-seconds>",
	Short: "Sign a price attestation for a non-stable deposit or purchase",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, keyID, err := loadSigningKey(cmd)
		if err != nil {
			return err
		}
		price, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("price: %w", err)
		}
		ttl, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("deadline-seconds: %w", err)
		}

		token, err := claims.SignPrice(key, keyID, args[0], price, time.Now().Add(time.Duration(ttl)*time.Second))
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

var signCancelCmd = &cobra.Command{
	Use:   "sign-cancel <policyholder> <premium> <deadline-seconds>",
	Short: "Sign a cancellation claim for a policyholder",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, keyID, err := loadSigningKey(cmd)
		if err != nil {
			return err
		}
		policyholder, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("policyholder: %w", err)
		}
		premium, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("premium: %w", err)
		}
		ttl, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("deadline-seconds: %w", err)
		}

		token, err := claims.SignCancel(key, keyID, policyholder, premium, time.Now().Add(time.Duration(ttl)*time.Second))
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

// loadSigningKey reads a base64 Ed25519 private key (64-byte key or
// 32-byte seed) from the --key-file flag.
func loadSigningKey(cmd *cobra.Command) (ed25519.PrivateKey, string, error) {
	keyFile, _ := cmd.Flags().GetString("key-file")
	keyID, _ := cmd.Flags().GetString("key-id")
	if keyFile == "" || keyID == "" {
		return nil, "", fmt.Errorf("--key-file and --key-id are required")
	}

	raw, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, "", fmt.Errorf("read key file: %w", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, "", fmt.Errorf("decode key: %w", err)
	}

	switch len(decoded) {
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(decoded), keyID, nil
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(decoded), keyID, nil
	default:
		return nil, "", fmt.Errorf("key must be %d or %d bytes, got %d",
			ed25519.PrivateKeySize, ed25519.SeedSize, len(decoded))
	}
}

func init() {
	for _, c := range []*cobra.Command{signPriceCmd, signCancelCmd} {
		c.Flags().String("key-file", os.Getenv("COVERCTL_KEY_FILE"), "file with base64 Ed25519 private key")
		c.Flags().String("key-id", os.Getenv("COVERCTL_KEY_ID"), "signer key ID registered on the node")
	}
	rootCmd.AddCommand(keygenCmd, signPriceCmd, signCancelCmd)
}
