package pipeline

import (
	"crypto/rand"
	"fmt"
	"sync"
)

const (
	idPrefix   = "prop_"
	idLength   = 6
	idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// issuedIDs remembers every id handed out by this process so two runs
// can never share one.
var issuedIDs = struct {
	sync.Mutex
	seen map[string]struct{}
}{seen: make(map[string]struct{})}

// NewID returns a fresh proposal id: prop_ followed by 6 characters of
// [a-z0-9], unique for the lifetime of the process.
func NewID() (string, error) {
	for {
		id, err := randomID()
		if err != nil {
			return "", err
		}
		issuedIDs.Lock()
		if _, dup := issuedIDs.seen[id]; !dup {
			issuedIDs.seen[id] = struct{}{}
			issuedIDs.Unlock()
			return id, nil
		}
		issuedIDs.Unlock()
	}
}

func randomID() (string, error) {
	// Rejection sampling keeps the alphabet unbiased: 252 = 7*36.
	const limit = 252
	out := make([]byte, 0, idLength)
	buf := make([]byte, idLength*2)
	for len(out) < idLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("reading random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, idAlphabet[int(b)%len(idAlphabet)])
			if len(out) == idLength {
				break
			}
		}
	}
	return idPrefix + string(out), nil
}
