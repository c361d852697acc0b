package website

import "strings"

// AcceptsMime reports whether mime matches one of the accepted patterns.
func (c Capabilities) AcceptsMime(mime string) bool {
	if len(c.AcceptedMimeTypes) == 0 {
		return true
	}
	mime = strings.ToLower(mime)
	for _, pattern := range c.AcceptedMimeTypes {
		pattern = strings.ToLower(pattern)
		if pattern == mime {
			return true
		}
		if prefix, ok := strings.CutSuffix(pattern, "/*"); ok && strings.HasPrefix(mime, prefix+"/") {
			return true
		}
	}
	return false
}
