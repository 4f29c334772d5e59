// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package core

import (
	"crypto/sha1" //nolint:gosec // alias shortening, not security
	"encoding/hex"
	"sort"
	"strings"
)

// buildAlias joins alias parts with "_" and, when the result exceeds
// maxLength, replaces it with a truncated SHA-1 hex digest.
func buildAlias(maxLength int, parts ...string) string {
	alias := strings.Join(parts, "_")
	if maxLength > 0 && len(alias) > maxLength {
		sum := sha1.Sum([]byte(alias)) //nolint:gosec
		digest := hex.EncodeToString(sum[:])
		if maxLength < len(digest) {
			digest = digest[:maxLength]
		}
		return digest
	}
	return alias
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
