// Package security masks credentials before they reach logs or operator
// output.
package security

import (
	"regexp"
	"strings"
)

const redacted = "***REDACTED***"

// MaskAccessKey masks an access key id, keeping the first and last 4 characters.
func MaskAccessKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// SensitivePatterns match credentials embedded in free text.
var SensitivePatterns = []*regexp.Regexp{
	// access key ids
	regexp.MustCompile(`\b((?:AKIA|ASIA))([A-Z0-9]{16})\b`),
	// secret keys in key=value or JSON form
	regexp.MustCompile(`(?i)("?(?:secret_key|secret_access_key|aws_secret_access_key|secretkey)"?\s*[=:]\s*"?)([A-Za-z0-9/+=]{20,})`),
	// session tokens
	regexp.MustCompile(`(?i)("?(?:session_token|security_token)"?\s*[=:]\s*"?)([A-Za-z0-9/+=]{16,})`),
	regexp.MustCompile(`(?i)(password|passwd|pwd)[=:]["']?([^"'\s&]+)["']?`),
}

// MaskSensitiveData masks credentials in a string, keeping the key names.
func MaskSensitiveData(data string) string {
	result := data
	for _, pattern := range SensitivePatterns {
		result = pattern.ReplaceAllString(result, "${1}"+redacted)
	}
	return result
}

// signedParams are the query parameters of a SigV4 presigned URL that
// grant access.
var signedParams = regexp.MustCompile(`(?i)((?:X-Amz-Signature|X-Amz-Credential|X-Amz-Security-Token)=)([^&\s]+)`)

// MaskURL masks the signature, credential and token of a presigned URL.
func MaskURL(rawURL string) string {
	return signedParams.ReplaceAllString(rawURL, "${1}"+redacted)
}

// IsSensitiveField checks if a field name indicates sensitive data
func IsSensitiveField(fieldName string) bool {
	sensitiveNames := []string{
		"password", "secret", "token", "credential", "signature", "access_key",
	}
	fieldLower := strings.ToLower(fieldName)
	for _, name := range sensitiveNames {
		if strings.Contains(fieldLower, name) {
			return true
		}
	}
	return false
}

// SanitizeError removes sensitive data from error messages
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return MaskURL(MaskSensitiveData(err.Error()))
}
