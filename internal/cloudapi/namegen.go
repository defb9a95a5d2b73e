package cloudapi

import (
	"crypto/rand"
	"fmt"
)

const nameSuffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// GenerateServerName appends a random 5-character suffix to prefix, so
// repeated create attempts for the same logical node never collide on
// the provider's server-name uniqueness constraint (spec.md §4.B
// "server name generation").
func GenerateServerName(prefix string) (string, error) {
	suffix, err := randomSuffix(5)
	if err != nil {
		return "", newCloudApiError(0, "failed to generate server name suffix: %s", err)
	}
	return fmt.Sprintf("%s-%s", prefix, suffix), nil
}

func randomSuffix(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = nameSuffixAlphabet[int(b)%len(nameSuffixAlphabet)]
	}
	return string(out), nil
}
