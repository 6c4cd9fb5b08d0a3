package tools

import (
	_ "embed"

	"github.com/isaacphi/toolturn/internal/config"
)

//go:embed builtin/alibaba-search.yaml
var alibabaSearchDoc string

const AlibabaSearchID = "alibaba-search"

// Builtins returns the plugins that ship with the binary. Configuration
// entries with the same id are layered on top of them.
func Builtins() map[string]config.Plugin {
	return map[string]config.Plugin{
		AlibabaSearchID: {
			Title:   "Alibaba Search",
			Version: "1.0.0",
			Kind:    KindOpenAPI,
			Content: alibabaSearchDoc,
			Auth: config.Auth{
				Type:     "bearer",
				Location: "header",
				Header:   "Authorization",
			},
		},
	}
}

// overlay applies the non-empty fields of p on top of base.
func overlay(base, p config.Plugin) config.Plugin {
	if p.Title != "" {
		base.Title = p.Title
	}
	if p.Version != "" {
		base.Version = p.Version
	}
	if p.Content != "" || p.Path != "" {
		base.Content, base.Path = p.Content, p.Path
	}
	if p.BaseURL != "" {
		base.BaseURL = p.BaseURL
	}
	if p.Auth.Type != "" {
		base.Auth.Type = p.Auth.Type
	}
	if p.Auth.Location != "" {
		base.Auth.Location = p.Auth.Location
	}
	if p.Auth.Header != "" {
		base.Auth.Header = p.Auth.Header
	}
	if p.Auth.Token != "" {
		base.Auth.Token = p.Auth.Token
	}
	return base
}
