package store

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const (
	base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	idHashLength   = 8
	idMaxAttempts  = 20

	BoardIDPrefix   = "bd"
	UserIDPrefix    = "au"
	SessionIDPrefix = "as"
)

// GenerateID returns a new id of the form <prefix>-<base36>.
// It retries on collisions using the provided exists function.
func GenerateID(prefix string, exists func(string) (bool, error)) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("id prefix is required")
	}

	for i := 0; i < idMaxAttempts; i++ {
		hash, err := randomBase36(idHashLength)
		if err != nil {
			return "", err
		}
		id := fmt.Sprintf("%s-%s", prefix, hash)
		if exists == nil {
			return id, nil
		}
		ok, err := exists(id)
		if err != nil {
			return "", err
		}
		if !ok {
			return id, nil
		}
	}

	return "", fmt.Errorf("unable to generate unique id")
}

func randomBase36(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	out := make([]byte, length)
	for i := 0; i < length; i++ {
		out[i] = base36Alphabet[int(b[i])%len(base36Alphabet)]
	}
	return string(out), nil
}

func generateHexID(prefix string) (string, error) {
	buf := make([]byte, 10)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", prefix, hex.EncodeToString(buf)), nil
}
