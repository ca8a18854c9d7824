package llm

import (
	"encoding/base64"
)

// PNGDataURL inlines a PNG for providers that take images as data URLs.
func PNGDataURL(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
