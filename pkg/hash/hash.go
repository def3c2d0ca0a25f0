// Copyright 2016 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package hash implements the content hash that fuzzing engines use to name testcases.
package hash

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
)

// Sig is a SHA-1 digest. The zero Sig is used by engines as the "no parent" sentinel.
type Sig [sha1.Size]byte

// HexLen is the length of the textual form of a Sig.
const HexLen = 2 * sha1.Size

func Hash(pieces ...[]byte) Sig {
	h := sha1.New()
	for _, data := range pieces {
		h.Write(data)
	}
	var sig Sig
	copy(sig[:], h.Sum(nil))
	return sig
}

func String(pieces ...[]byte) string {
	sig := Hash(pieces...)
	return sig.String()
}

func (sig Sig) String() string {
	return hex.EncodeToString(sig[:])
}

func (sig Sig) IsZero() bool {
	return sig == Sig{}
}

// FromString parses a 40 char hex digest, upper and lower case are accepted.
func FromString(str string) (Sig, error) {
	if len(str) != HexLen {
		return Sig{}, fmt.Errorf("failed to decode sig %q: bad len %v", str, len(str))
	}
	bin, err := hex.DecodeString(strings.ToLower(str))
	if err != nil {
		return Sig{}, fmt.Errorf("failed to decode sig %q: %w", str, err)
	}
	var sig Sig
	copy(sig[:], bin)
	return sig, nil
}

// Zero is the textual form of the zero Sig.
var Zero = Sig{}.String()
