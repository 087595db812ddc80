// Package extid sanitizes caller-supplied extension identifiers before they
// are used as store keys and database file names.
package extid

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
)

// MaxLength is the longest token Sanitize will produce.
const MaxLength = 255

// unsafeChars are replaced with '_' so the token is safe as a file name fragment.
var unsafeChars = []string{"<", ">", ":", `"`, "/", `\`, "|", "?", "*"}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Sanitize converts an extension identifier into a token that is safe to use
// as a file name fragment. Path traversal sequences are stripped repeatedly
// until stable so forms like "....//" cannot survive a single pass.
func Sanitize(id string) (string, error) {
	if id == "" {
		return "", httperror.NewHTTPError(http.StatusBadRequest, "extension id is required")
	}

	token := id
	for {
		next := strings.ReplaceAll(token, "../", "")
		next = strings.ReplaceAll(next, `..\`, "")
		if next == token {
			break
		}
		token = next
	}

	for _, ch := range unsafeChars {
		token = strings.ReplaceAll(token, ch, "_")
	}

	if len(token) > MaxLength {
		token = token[:MaxLength]
	}

	if token == "" {
		return "", httperror.NewHTTPErrorf(http.StatusBadRequest, "extension id %q is empty after sanitization", id)
	}

	return token, nil
}

// Validate runs Sanitize and applies the registry admission rules: the token
// must be non-empty after trimming and must not begin with a dot. Every
// registry lookup and registration goes through Validate.
func Validate(id string) (string, error) {
	token, err := Sanitize(id)
	if err != nil {
		return "", err
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", httperror.NewHTTPError(http.StatusBadRequest, "extension id is empty after sanitization")
	}
	if strings.HasPrefix(token, ".") {
		return "", httperror.NewHTTPErrorf(http.StatusBadRequest, "extension id %q must not begin with '.'", token)
	}

	return token, nil
}

// IsValidID reports whether s is admissible at the HTTP boundary. Stricter
// than Sanitize: header and path identifiers must already be clean, not
// merely cleanable.
func IsValidID(s string) bool {
	return idPattern.MatchString(s)
}
