// Package shared
package shared

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
)

func ExtractAPIKey(c echo.Context) (string, error) {
	auth := c.Request().Header.Get("Authorization")
	if auth == "" {
		return "", ErrMissingAuth
	}

	parts := strings.Split(auth, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", ErrInvalidFormat
	}

	return parts[1], nil
}

// ValidateHypothesisTemplate requires the "{}" placeholder hosted inference
// servers substitute the label into.
func ValidateHypothesisTemplate(template string) error {
	if !strings.Contains(template, "{}") {
		return fmt.Errorf("hypothesis template %q has no {} placeholder", template)
	}
	return nil
}

// FillTemplate substitutes label for the first "{}" in template.
func FillTemplate(template, label string) string {
	return strings.Replace(template, "{}", label, 1)
}
