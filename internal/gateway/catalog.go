package gateway

import (
	"encoding/json"
	"os"

	"github.com/rs/zerolog/log"
)

// CatalogModel is one advertised model. The name carries the provider
// prefix that routing resolves on.
type CatalogModel struct {
	Name       string `json:"name"`
	Model      string `json:"model"`
	ModifiedAt string `json:"modified_at"`
	Size       int64  `json:"size"`
}

// Catalog is the static list of models the gateway advertises on its
// discovery endpoints. Routing does not consult it; any model with a
// known provider prefix is served even when absent here.
type Catalog struct {
	models []CatalogModel
}

// defaultModels covers one routable model per built-in provider.
func defaultModels() []string {
	return []string{
		"google:gemini-2.5-flash",
		"google:gemini-2.5-pro",
		"openrouter:qwen/qwen3-coder:free",
		"openrouter:deepseek/deepseek-chat-v3-0324:free",
		"akash:Meta-Llama-3-3-70B-Instruct",
		"cohere:command-a-03-2025",
		"codestral:codestral-latest",
		"qwen:qwen3-coder-plus",
		"perplexity:sonar",
	}
}

// NewCatalog loads the model list from path, falling back to the built-in
// list when the file is missing or malformed.
func NewCatalog(path string) *Catalog {
	names := defaultModels()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			log.Debug().Str("path", path).Msg("models file absent, using built-in list")
		case err != nil:
			log.Warn().Err(err).Str("path", path).Msg("models file unreadable, using built-in list")
		default:
			var fromFile []string
			if jsonErr := json.Unmarshal(data, &fromFile); jsonErr != nil || len(fromFile) == 0 {
				log.Warn().Err(jsonErr).Str("path", path).Msg("models file malformed, using built-in list")
			} else {
				names = fromFile
			}
		}
	}

	models := make([]CatalogModel, 0, len(names))
	for _, name := range names {
		models = append(models, CatalogModel{Name: name, Model: name})
	}
	return &Catalog{models: models}
}

// Models returns the advertised model list.
func (c *Catalog) Models() []CatalogModel {
	return c.models
}
