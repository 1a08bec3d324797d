package messenger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderTemplate_SubstitutesKnownVariables(t *testing.T) {
	out := renderTemplate("Hola $user_name, soy ${bot_name}.", map[string]string{
		"user_name": "Ana", "bot_name": "Lucien",
	})
	assert.Equal(t, "Hola Ana, soy Lucien.", out)
}

func TestRenderTemplate_LeavesUnmatchedPlaceholdersUntouched(t *testing.T) {
	out := renderTemplate("Hola $user_name, tu pista es $missing_var.", map[string]string{
		"user_name": "Ana",
	})
	assert.Equal(t, "Hola Ana, tu pista es $missing_var.", out)
}

func TestRenderTemplate_DoubleDollarIsLiteralDollar(t *testing.T) {
	out := renderTemplate("Costs $$5", map[string]string{})
	assert.Equal(t, "Costs $5", out)
}

func TestRenderTemplate_BareTrailingDollarIsLiteral(t *testing.T) {
	out := renderTemplate("price: $", map[string]string{})
	assert.Equal(t, "price: $", out)
}
