// Package randtoken generates short random alphanumeric tokens. It exists
// so the places hamsync needs one — graph.Flattener.Set's child-id
// suffix, auth's proof-of-work nonce, and the engine's outbound message
// ids — share a single implementation.
package randtoken

import "crypto/rand"

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Generate returns a random token of n characters drawn from the
// alphanumeric alphabet.
func Generate(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out), nil
}
