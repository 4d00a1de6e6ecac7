// Package i18n holds locale catalogs for user-facing error messages.
package i18n

import (
	"strings"
	"text/template"
)

// Code mirrors the error code strings defined in internal/errors/codes.go.
// The codes are duplicated as strings to avoid an import cycle.
type Code = string

// Catalog maps error codes to locale-specific message templates.
type Catalog struct {
	locale   string
	messages map[Code]string
}

var catalogs = map[string]*Catalog{
	"en-US": enUSCatalog,
}

// GetCatalog returns the catalog for a locale, falling back to en-US.
func GetCatalog(locale string) *Catalog {
	if catalog, ok := catalogs[locale]; ok {
		return catalog
	}
	if base, _, found := strings.Cut(locale, "-"); found {
		for key, catalog := range catalogs {
			if strings.HasPrefix(key, base+"-") {
				return catalog
			}
		}
	}
	return enUSCatalog
}

// Locale returns the catalog's locale identifier.
func (c *Catalog) Locale() string {
	return c.locale
}

// Format renders the message template for a code with the given metadata.
// Unknown codes and template failures fall back to a generic message so a
// missing translation never breaks a response.
func (c *Catalog) Format(code Code, metadata map[string]string) string {
	message, ok := c.messages[code]
	if !ok {
		return genericMessage
	}
	if !strings.Contains(message, "{{") {
		return message
	}

	tmpl, err := template.New(code).Parse(message)
	if err != nil {
		return message
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, metadata); err != nil {
		return message
	}
	return sb.String()
}

const genericMessage = "An unexpected error occurred"
