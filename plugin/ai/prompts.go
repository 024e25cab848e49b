package ai

import (
	errs "github.com/hearthfire/cookforge/internal/errors"
)

// Prompt catalog names used by the workflows.
const (
	CatalogChat            = "chat"
	CatalogRecipeRank      = "recipe_rank"
	CatalogRecipeSynthesis = "recipe_synthesis"
)

const chatPrompt = `You are a friendly cookbook assistant. Help the customer refine
what they want their personalized cookbook to contain. Be concise.`

const recipeRankPrompt = `You judge how well a candidate recipe matches a customer's
cookbook theme. Respond with a single number between 0 and 100, where
100 is a perfect match. Respond with the number only.`

const recipeSynthesisPrompt = `You write complete recipes for a personalized cookbook.
Respond with a single JSON object with keys "title", "ingredients"
(array of strings), "instructions" (array of strings) and "servings"
(number). Respond with JSON only, no prose.`

var catalog = map[string]string{
	CatalogChat:            chatPrompt,
	CatalogRecipeRank:      recipeRankPrompt,
	CatalogRecipeSynthesis: recipeSynthesisPrompt,
}

// SystemPrompt returns the system prompt registered under the catalog
// name.
func SystemPrompt(catalogName string) (string, error) {
	prompt, ok := catalog[catalogName]
	if !ok {
		return "", errs.NotFoundf("prompt catalog %s not found", catalogName)
	}
	return prompt, nil
}

// CatalogNames lists the registered catalog names.
func CatalogNames() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	return names
}
