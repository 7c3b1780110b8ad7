package utils

// MaskSecret keeps enough of a credential to recognize it in a log line.
func MaskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 4:
		return "*****"
	}
	return s[:4] + "*****"
}
