// Package httpserver carries the HTTP plumbing shared by the REST
// services: response helpers, request middleware, and listener setup.
package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/text/language"

	apperrors "github.com/momentum-oss/momentum/internal/errors"
)

// maxBodyBytes caps request bodies so a hostile payload cannot exhaust memory.
const maxBodyBytes = 1 << 20

var supportedLocales = language.NewMatcher([]language.Tag{
	language.AmericanEnglish,
})

// WriteJSON writes payload as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// Headers are already written; nothing useful left to send.
		return
	}
}

// WriteError maps err to an HTTP status and localized JSON body.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := apperrors.HandleHTTP(err, requestLocale(r))
	WriteJSON(w, status, body)
}

// DecodeJSON decodes a request body into target, rejecting oversized
// payloads and trailing garbage.
func DecodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("request body contains trailing data")
	}
	return nil
}

func requestLocale(r *http.Request) string {
	if r == nil {
		return ""
	}
	tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	if err != nil || len(tags) == 0 {
		return ""
	}
	tag, _, _ := supportedLocales.Match(tags...)
	return tag.String()
}
