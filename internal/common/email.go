package common

import "strings"

// NormalizeEmail lower-cases and trims an identifier before lookup or storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
