package tagset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreferredName(t *testing.T) {
	tags := Tags{"name": "Germany", "name:ru": "Германия"}
	assert.Equal(t, "Германия", PreferredName(tags))
	assert.Equal(t, "Germany", PreferredEnglishName(tags))
}

func TestPreferredNameFallback(t *testing.T) {
	tags := Tags{"official_name": "Republic of X"}
	assert.Equal(t, "Republic of X", PreferredName(tags))
}

func TestISO2(t *testing.T) {
	assert.Equal(t, "DE", ISO2(Tags{"ISO3166-1:alpha2": "de"}))
	assert.Equal(t, "", ISO2(Tags{"ISO3166-1:alpha2": "DEU"}))
	assert.Equal(t, "", ISO2(Tags{}))
}

func TestStripReserved(t *testing.T) {
	props := map[string]any{
		"name":       "Germany",
		"osm_type":   "relation",
		"osm_id":     float64(51477),
		"population": "83000000",
	}
	got := StripReserved(props)
	assert.Equal(t, Tags{"population": "83000000"}, got)
}
