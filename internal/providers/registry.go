// Package providers resolves a requested model to an upstream target.
//
// Models carry a "provider:" prefix ("google:gemini-2.5-flash"); resolution
// is an exact prefix match against the fixed table built at startup. There
// is no runtime mutation: adding a provider is a configuration change, not
// an API.
package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/omnirelay/llm-gateway/internal/auth"
	"github.com/omnirelay/llm-gateway/internal/config"
)

// ErrUnknownModel is returned when no provider prefix matches. The
// orchestrator turns it into a client error; it is never retried and never
// reaches an upstream.
var ErrUnknownModel = errors.New("no provider matches model prefix")

// Profile is one resolved upstream target, immutable after startup.
type Profile struct {
	// Name is the provider prefix ("google", "qwen", ...).
	Name string

	// BaseURL is the OpenAI-compatible API root.
	BaseURL string

	// Credentials is the provider's credential store singleton.
	Credentials auth.Store

	// MergeRoles requests the consecutive-same-role normalization pass.
	MergeRoles bool

	// ExtraBody, when non-nil, is spliced into the upstream payload under
	// "extra_body". Opaque provider configuration.
	ExtraBody json.RawMessage
}

// Registry is the static provider table.
type Registry struct {
	profiles map[string]*Profile
}

// NewRegistry builds profiles and their credential stores from the config.
func NewRegistry(cfg *config.Config) (*Registry, error) {
	r := &Registry{profiles: make(map[string]*Profile, len(cfg.Providers))}

	for name, pc := range cfg.Providers {
		var store auth.Store
		switch pc.Auth {
		case config.AuthRotatingKeys:
			store = auth.NewKeyRotator(name, pc.Keys(), cfg.StateDir)
		case config.AuthOAuth:
			store = auth.NewOAuthSession(name, pc.CredsPath, pc.RefreshURL)
		default:
			return nil, fmt.Errorf("provider %q: unknown auth kind %q", name, pc.Auth)
		}

		var extra json.RawMessage
		if len(pc.ExtraBody) > 0 {
			raw, err := json.Marshal(pc.ExtraBody)
			if err != nil {
				return nil, fmt.Errorf("provider %q: extra_body: %w", name, err)
			}
			extra = raw
		}

		r.profiles[name] = &Profile{
			Name:        name,
			BaseURL:     strings.TrimRight(pc.BaseURL, "/"),
			Credentials: store,
			MergeRoles:  pc.MergeRoles,
			ExtraBody:   extra,
		}
	}
	return r, nil
}

// Resolve maps "provider:model" to its profile and the stripped model name.
func (r *Registry) Resolve(model string) (*Profile, string, error) {
	name, stripped, found := strings.Cut(model, ":")
	if !found {
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
	profile, ok := r.profiles[name]
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
	return profile, stripped, nil
}

// Names returns the registered provider names, sorted for stable logging.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
