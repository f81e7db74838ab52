package slugify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugifyBasic(t *testing.T) {
	assert.Equal(t, "unnamed", Slugify("", 80))
	assert.Equal(t, "unnamed", Slugify("   ", 80))
	assert.Equal(t, "germany", Slugify("Germany", 80))
	assert.Equal(t, "cote-d-ivoire", Slugify("Côte d'Ivoire", 80))
}

func TestSlugifyCyrillic(t *testing.T) {
	assert.Equal(t, "moskva", Slugify("Москва", 80))
	assert.Equal(t, "rossiya", Slugify("Россия", 80))
}

func TestSlugifyIdempotent(t *testing.T) {
	inputs := []string{"Germany", "Москва", "  weird --- text__", "Côte d'Ivoire"}
	for _, in := range inputs {
		once := Slugify(in, 80)
		twice := Slugify(once, 80)
		assert.Equal(t, once, twice, "not idempotent for %q", in)
	}
}

func TestSlugifyMaxLen(t *testing.T) {
	s := Slugify("a very long administrative area name indeed", 10)
	assert.LessOrEqual(t, len(s), 10)
}
