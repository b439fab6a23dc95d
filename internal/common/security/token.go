package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"math/big"
)

// Combat codes avoid O and 0 to stay unambiguous when typed by hand.
const combatCodeAlphabet = "ABCDEFGHIJKLMNPQRSTUVWXYZ123456789"

const CombatCodeLength = 6

// UserTokenPrefix marks long-lived personal access tokens so they can be
// told apart from combat-scoped keys at a glance.
const UserTokenPrefix = "molt_"

// GenerateCombatCode returns a random uppercase alphanumeric invite code.
// Uniqueness is the caller's concern; codes are re-rolled on collision.
func GenerateCombatCode() (string, error) {
	code := make([]byte, CombatCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(combatCodeAlphabet))))
		if err != nil {
			return "", err
		}
		code[i] = combatCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// GenerateCombatKey returns a high-entropy bearer secret scoped to a single
// combat participant.
func GenerateCombatKey() (string, error) {
	return randomURLToken(32)
}

// GenerateUserToken returns a persistent account-level API token.
func GenerateUserToken() (string, error) {
	token, err := randomURLToken(48)
	if err != nil {
		return "", err
	}
	return UserTokenPrefix + token, nil
}

// HashToken returns the hex SHA-256 digest used to store bearer secrets at
// rest. Plaintext tokens are never persisted.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// VerifyToken compares a plaintext token against its stored digest.
func VerifyToken(token, tokenHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(tokenHash)) == 1
}

func randomURLToken(numBytes int) (string, error) {
	raw := make([]byte, numBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
