package level

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

const liwaywaiPrefix = "LW"

// NewLiwaywaiID returns a public borrower identifier: prefix, base36 millisecond
// timestamp and six random hex characters, all upper case.
func NewLiwaywaiID(now time.Time) (string, error) {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	ts := strconv.FormatInt(now.UnixMilli(), 36)
	return liwaywaiPrefix + strings.ToUpper(ts) + strings.ToUpper(hex.EncodeToString(b)), nil
}
