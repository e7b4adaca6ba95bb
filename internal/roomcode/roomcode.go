// Package roomcode generates memorable room ids such as
// "kitten-waffle-stardust-happy".
package roomcode

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Words is the number of words in a code.
const Words = 4

const maxAttempts = 64

// ErrExhausted is returned when every attempt produced a code that was taken.
var ErrExhausted = errors.New("roomcode: no free code found")

var wordLists = [][]string{animals, dishes, names, randomWords, adjectives, extras}

// Generate returns a code built from one word of each of four distinct,
// randomly chosen lists. taken may be nil; otherwise codes it reports as in
// use are skipped.
func Generate(taken func(string) bool) (string, error) {
	for range maxAttempts {
		code, err := newCode()
		if err != nil {
			return "", err
		}
		if taken == nil || !taken(code) {
			return code, nil
		}
	}
	return "", ErrExhausted
}

func newCode() (string, error) {
	order := make([]int, len(wordLists))
	for i := range order {
		order[i] = i
	}
	// Partial Fisher-Yates: the first Words entries become the chosen lists.
	for i := range Words {
		j, err := randomIndex(len(order) - i)
		if err != nil {
			return "", err
		}
		order[i], order[i+j] = order[i+j], order[i]
	}

	words := make([]string, Words)
	for i := range Words {
		list := wordLists[order[i]]
		n, err := randomIndex(len(list))
		if err != nil {
			return "", err
		}
		words[i] = list[n]
	}
	return strings.Join(words, "-"), nil
}

// randomIndex returns a cryptographically secure random index in [0, n).
func randomIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("roomcode: read random: %w", err)
	}
	return int(v.Int64()), nil
}
