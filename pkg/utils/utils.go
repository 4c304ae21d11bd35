// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package utils

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Contains return true if val exist in list, else return false.
func Contains[T comparable](list []T, val T) bool {
	for _, v := range list {
		if v == val {
			return true
		}
	}
	return false
}

// GenerateUUID generates uuid without hyphens.
func GenerateUUID() string {
	id, _ := uuid.NewRandom()
	return strings.ReplaceAll(id.String(), "-", "")
}

var (
	whitespace   = regexp.MustCompile(`\s+`)
	unsafeTokens = regexp.MustCompile(`[^A-Za-z0-9._+-]`)
)

// SanitizeToken makes s usable as a single shell argument and file name component.
// Whitespace becomes an underscore and every other unsafe character is dropped.
func SanitizeToken(s string) string {
	s = whitespace.ReplaceAllString(strings.TrimSpace(s), "_")
	s = unsafeTokens.ReplaceAllString(s, "")
	s = strings.TrimLeft(s, ".-")
	if len(s) > 255 {
		s = s[:255]
	}

	return s
}

// SplitOptions splits a space separated option string, dropping empty fields.
func SplitOptions(options string) []string {
	return strings.Fields(options)
}
