// Package id issues opaque identifiers for jobs and preview sessions.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"sync/atomic"
	"time"
)

const (
	PrefixJob     = "job"
	PrefixPreview = "pv"
)

var fallbackSeq atomic.Uint64

// New returns prefix_ followed by 24 hex characters. If the system random
// source fails it falls back to a time based value that is still unique
// within the process.
func New(prefix string) string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		n := uint64(time.Now().UnixNano()) ^ fallbackSeq.Add(1)<<48
		return join(prefix, strconv.FormatUint(n, 16))
	}
	return join(prefix, hex.EncodeToString(b[:]))
}

func join(prefix, body string) string {
	if prefix == "" {
		return body
	}
	return prefix + "_" + body
}
