// Package mfa wraps TOTP generation/validation and backup-code handling.
package mfa

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Config controls TOTP parameters and backup-code shape.
type Config struct {
	Issuer          string
	Digits          otp.Digits
	Period          uint
	Skew            uint
	Algorithm       otp.Algorithm
	SecretSize      uint
	BackupCodeCount int
	BackupCodeBytes int
}

// Default returns SHA1, six digits, a 30 second period, two steps of skew and
// eight backup codes of eight random bytes.
func Default() Config {
	return Config{
		Issuer:          "goRiskAuth",
		Digits:          otp.DigitsSix,
		Period:          30,
		Skew:            2,
		Algorithm:       otp.AlgorithmSHA1,
		SecretSize:      20,
		BackupCodeCount: 8,
		BackupCodeBytes: 8,
	}
}

// Enrollment is a freshly generated secret with its provisioning URL and backup codes.
type Enrollment struct {
	Secret      string
	URL         string
	BackupCodes []string
}

// Generate creates a new secret and backup codes for account, reading entropy from rand.
func Generate(cfg Config, account string, rand io.Reader) (*Enrollment, error) {
	if account == "" {
		return nil, errors.New("mfa account name required")
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      cfg.Issuer,
		AccountName: account,
		Period:      cfg.Period,
		SecretSize:  cfg.SecretSize,
		Digits:      cfg.Digits,
		Algorithm:   cfg.Algorithm,
		Rand:        rand,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}

	codes, err := NewBackupCodes(rand, cfg.BackupCodeCount, cfg.BackupCodeBytes)
	if err != nil {
		return nil, err
	}

	return &Enrollment{
		Secret:      key.Secret(),
		URL:         key.URL(),
		BackupCodes: codes,
	}, nil
}

// Validate checks code against secret at the given time within the skew window.
func Validate(cfg Config, code, secret string, at time.Time) bool {
	code = strings.TrimSpace(code)
	if code == "" || secret == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, at.UTC(), validateOpts(cfg))
	return err == nil && ok
}

// Code returns the TOTP value for secret at t.
func Code(cfg Config, secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t.UTC(), validateOpts(cfg))
}

func validateOpts(cfg Config) totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    cfg.Period,
		Skew:      cfg.Skew,
		Digits:    cfg.Digits,
		Algorithm: cfg.Algorithm,
	}
}

// NewBackupCodes returns count codes of size random bytes, hex encoded and upper-cased.
func NewBackupCodes(rand io.Reader, count, size int) ([]string, error) {
	if count <= 0 || size <= 0 {
		return nil, errors.New("invalid backup code configuration")
	}
	codes := make([]string, count)
	buf := make([]byte, size)
	for i := range codes {
		if _, err := io.ReadFull(rand, buf); err != nil {
			return nil, fmt.Errorf("generate backup code: %w", err)
		}
		codes[i] = strings.ToUpper(hex.EncodeToString(buf))
	}
	return codes, nil
}

// NormalizeBackupCode upper-cases the code and drops separators users tend to type.
func NormalizeBackupCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.NewReplacer("-", "", " ", "").Replace(code)
}

// HashBackupCode binds a code to its owner so equal codes of two users never collide.
func HashBackupCode(userID, code string) [32]byte {
	return sha256.Sum256([]byte(userID + ":" + NormalizeBackupCode(code)))
}

// MatchBackupCode scans every stored digest in constant time per entry and returns
// the index of the match.
func MatchBackupCode(stored [][32]byte, candidate [32]byte) (int, bool) {
	match := -1
	for i := range stored {
		if subtle.ConstantTimeCompare(stored[i][:], candidate[:]) == 1 && match < 0 {
			match = i
		}
	}
	return match, match >= 0
}
