// Package llm wraps completion providers behind a small prompt-in, text-out client.
package llm

import (
	"errors"
	"sort"
)

var (
	// ErrUnknownProvider is returned for a provider name that is not registered.
	ErrUnknownProvider = errors.New("unknown llm provider")
	// ErrOfflineMode is returned when a cloud provider is requested while cloud use is disabled.
	ErrOfflineMode = errors.New("cloud llm providers are disabled in offline mode")
	// ErrMissingAPIKey is returned when a cloud provider has no API key configured.
	ErrMissingAPIKey = errors.New("missing api key")
)

// Provider names.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ProviderInfo describes one completion provider.
type ProviderInfo struct {
	Name      string `json:"name"`
	Model     string `json:"model"`
	Local     bool   `json:"local"`
	Available bool   `json:"available"`
	Current   bool   `json:"current"`
	Reason    string `json:"reason,omitempty"`
}

var localProviders = map[string]bool{
	ProviderOllama:    true,
	ProviderOpenAI:    false,
	ProviderAnthropic: false,
}

// IsLocal reports whether the named provider runs on this machine.
// The second result is false for unknown providers.
func IsLocal(name string) (local, known bool) {
	local, known = localProviders[name]
	return local, known
}

// ProviderNames returns every registered provider name, sorted.
func ProviderNames() []string {
	names := make([]string, 0, len(localProviders))
	for n := range localProviders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
