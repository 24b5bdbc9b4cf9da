package common

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	ENABLED  = "enabled"
	DISABLED = "disabled"
)

var snowflakeNode *snowflake.Node

func init() {
	var err error
	snowflakeNode, err = snowflake.NewNode(time.Now().Unix() % 1023)
	if err != nil {
		panic(err)
	}
}

// UUIDint64 returns a snowflake-based int64 identifier.
func UUIDint64() int64 {
	return snowflakeNode.Generate().Int64()
}

// UUIDstr returns a snowflake-based string identifier.
func UUIDstr() string {
	return snowflakeNode.Generate().String()
}

const blobNameAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// RandomBlobName returns a short random name for archived credential blobs:
// `letters` random alphanumeric characters followed by a random number of at
// most `digits` decimal digits, e.g. "aZx81Q4821".
func RandomBlobName(letters, digits int) string {
	var b strings.Builder
	for i := 0; i < letters; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(blobNameAlphabet))))
		if err != nil {
			n = big.NewInt(int64(i % len(blobNameAlphabet)))
		}
		b.WriteByte(blobNameAlphabet[n.Int64()])
	}
	max := big.NewInt(1)
	for i := 0; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		n = big.NewInt(0)
	}
	b.WriteString(n.String())
	return b.String()
}

// SanitizeNumber strips every non-digit character from a phone number.
func SanitizeNumber(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FileExists reports whether path exists and is a regular file.
func FileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}

// FmtSecond formats a duration in seconds as "1h 2m 3s".
func FmtSecond(sec int64) string {
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}
