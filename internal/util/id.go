package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a 32-character random hex identifier. A non-empty prefix is
// joined with an underscore ("hab_…", "rtn_…", "stp_…", "mood_…", "usr_…"),
// which keeps ids self-describing in logs and composite keys.
func NewID(prefix string) string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	id := hex.EncodeToString(buf)
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
