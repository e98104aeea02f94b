// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package web

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
)

const flashCookieName = "gatehouse_flash"

// Flash categories shown with distinct styling in the layout.
const (
	FlashSuccess = "success"
	FlashDanger  = "danger"
	FlashWarning = "warning"
	FlashInfo    = "info"
)

// Flash is a one-shot message carried across a redirect.
type Flash struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// flashCodec signs and verifies the flash cookie. The cookie lives on the
// client, so an HMAC over the payload keeps users from forging categories
// or injecting messages.
type flashCodec struct {
	secret []byte
}

func newFlashCodec(secret []byte) *flashCodec {
	return &flashCodec{secret: secret}
}

func (c *flashCodec) sign(payload string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// encode serializes flashes into a signed cookie value.
func (c *flashCodec) encode(flashes []Flash) (string, error) {
	raw, err := json.Marshal(flashes)
	if err != nil {
		return "", err
	}
	payload := base64.RawURLEncoding.EncodeToString(raw)
	return payload + "." + c.sign(payload), nil
}

// decode verifies the signature and unpacks the flashes. Tampered or
// malformed values yield nil without error; a bad cookie is just dropped.
func (c *flashCodec) decode(value string) []Flash {
	payload, sig, found := strings.Cut(value, ".")
	if !found {
		return nil
	}
	if !hmac.Equal([]byte(c.sign(payload)), []byte(sig)) {
		return nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return nil
	}
	var flashes []Flash
	if err := json.Unmarshal(raw, &flashes); err != nil {
		return nil
	}
	return flashes
}

// addFlash appends a message to the pending flash cookie. Existing pending
// flashes on the request are preserved so multiple messages survive one
// redirect.
func (c *flashCodec) addFlash(w http.ResponseWriter, r *http.Request, category, message string) {
	flashes := c.pending(r)
	flashes = append(flashes, Flash{Category: category, Message: message})

	value, err := c.encode(flashes)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// takeFlashes returns the pending flashes and clears the cookie.
func (c *flashCodec) takeFlashes(w http.ResponseWriter, r *http.Request) []Flash {
	flashes := c.pending(r)
	if flashes == nil {
		return nil
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return flashes
}

func (c *flashCodec) pending(r *http.Request) []Flash {
	cookie, err := r.Cookie(flashCookieName)
	if err != nil {
		return nil
	}
	return c.decode(cookie.Value)
}
