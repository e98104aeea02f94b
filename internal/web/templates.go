// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package web

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

//go:embed templates/*.html
var templateFS embed.FS

// pageData is the view model shared by all templates.
type pageData struct {
	Username string
	Flashes  []Flash
	User     *auth.Profile
	Form     formData
}

// formData echoes submitted values back into the form after a failed post.
// Passwords are never echoed.
type formData struct {
	Username string
	Email    string
}

// templates holds each page pre-parsed against the base layout.
type templates struct {
	pages map[string]*template.Template
}

func parseTemplates() (*templates, error) {
	pages := map[string]*template.Template{}
	for _, name := range []string{"home.html", "login.html", "register.html", "dashboard.html"} {
		t, err := template.ParseFS(templateFS, "templates/base.html", "templates/"+name)
		if err != nil {
			return nil, oops.Code("TEMPLATE_PARSE_FAILED").With("page", name).Wrap(err)
		}
		pages[name] = t
	}
	return &templates{pages: pages}, nil
}

// render writes the page with the given status. Render failures after the
// header is written cannot be recovered, so they are only logged.
func (h *Handlers) render(w http.ResponseWriter, status int, page string, data pageData) {
	t, ok := h.templates.pages[page]
	if !ok {
		h.logger.Error("unknown template", "page", page)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := t.ExecuteTemplate(w, "base.html", data); err != nil {
		errutil.LogError(h.logger, "template render failed", err)
	}
}
