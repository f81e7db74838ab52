// Package tagset models the open-ended key/value tag maps OpenStreetMap
// elements carry, and the fixed name-preference order the catalog and
// downloader use when presenting a human-readable label for a relation.
package tagset

import "strings"

// Tags is an OSM element's tag map.
type Tags map[string]string

var preferredNameKeys = []string{
	"name:ru", "name", "name:en", "official_name:ru", "official_name",
	"short_name:ru", "short_name",
}

var preferredEnglishNameKeys = []string{
	"name:en", "int_name", "official_name:en", "official_name", "name",
	"short_name:en", "short_name",
}

var iso2Keys = []string{
	"ISO3166-1:alpha2", "ISO3166-1", "iso3166-1:alpha2", "iso3166-1",
}

func firstNonEmpty(t Tags, keys []string) string {
	for _, k := range keys {
		if v, ok := t[k]; ok {
			v = strings.TrimSpace(v)
			if v != "" {
				return v
			}
		}
	}
	return ""
}

// PreferredName returns the first non-empty value from the localized
// name-preference order (Russian-first, matching the source catalog).
func PreferredName(t Tags) string {
	return firstNonEmpty(t, preferredNameKeys)
}

// PreferredEnglishName returns the first non-empty value from the
// English-preference order, used for filenames and slugs.
func PreferredEnglishName(t Tags) string {
	return firstNonEmpty(t, preferredEnglishNameKeys)
}

// ISO2 returns a two-letter uppercase ASCII country code from any of the
// recognized ISO-3166-1 tag keys, or "" if none qualifies.
func ISO2(t Tags) string {
	for _, k := range iso2Keys {
		v, ok := t[k]
		if !ok {
			continue
		}
		v = strings.ToUpper(strings.TrimSpace(v))
		if len(v) != 2 {
			continue
		}
		isAlpha := true
		for _, r := range v {
			if r < 'A' || r > 'Z' {
				isAlpha = false
				break
			}
		}
		if isAlpha {
			return v
		}
	}
	return ""
}

// ReservedObjectKeys are the property keys WriteObjectGeoJSON and friends
// add to a feature; consumers strip these back out when reconstructing tags
// from a previously written object file.
var ReservedObjectKeys = map[string]struct{}{
	"relation_id":                   {},
	"osm_type":                      {},
	"osm_id":                        {},
	"name":                          {},
	"preview_generated_at_epoch":    {},
}

// StripReserved returns a copy of props with the reserved object keys
// removed, leaving only the original OSM tags.
func StripReserved(props map[string]any) Tags {
	out := make(Tags, len(props))
	for k, v := range props {
		if _, reserved := ReservedObjectKeys[k]; reserved {
			continue
		}
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
