package utils

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
)

// referenceAlphabet drops look-alike characters (0/O, 1/I) since customers read
// reference IDs back over the phone.
const referenceAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateReferenceID returns a client-visible booking reference.
// Format: P2H-YYMMDD-XXXXXX
// Example: P2H-261016-K7M2QD
func GenerateReferenceID() (string, error) {
	return generateReference("P2H", 6)
}

// GenerateRecoveryReferenceID returns a reference for bookings synthesized from
// an orphan payment: P2H-R-YYMMDD-XXXXXX.
func GenerateRecoveryReferenceID() (string, error) {
	return generateReference("P2H-R", 6)
}

func generateReference(prefix string, n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, v := range b {
		sb.WriteByte(referenceAlphabet[int(v)%len(referenceAlphabet)])
	}
	return fmt.Sprintf("%s-%s-%s", prefix, time.Now().In(IST).Format("060102"), sb.String()), nil
}
