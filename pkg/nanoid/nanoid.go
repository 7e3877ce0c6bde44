package nanoid

import (
	"crypto/rand"
)

const idLetters = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
const defaultLen = 6

// New returns a short random id used to tag a connection in logs and events.
func New() string {
	return NewWithLen(defaultLen)
}

// NewWithLen draws random bytes and rejects those that would bias the
// alphabet (62 does not divide 256).
func NewWithLen(length int) string {
	const limit = 256 - 256%len(idLetters)

	result := make([]byte, 0, length)
	buf := make([]byte, length*2)
	for len(result) < length {
		if _, err := rand.Read(buf); err != nil {
			panic("nanoid: crypto/rand failed: " + err.Error())
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			result = append(result, idLetters[int(b)%len(idLetters)])
			if len(result) == length {
				break
			}
		}
	}
	return string(result)
}
