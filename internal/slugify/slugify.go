// Package slugify converts free-form OSM name tags into filesystem- and
// URL-safe slugs, transliterating Cyrillic text the way the source catalog
// service does.
package slugify

import (
	"strings"
	"unicode"
)

var cyrMap = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d",
	'е': "e", 'ё': "yo", 'ж': "zh", 'з': "z", 'и': "i",
	'й': "y", 'к': "k", 'л': "l", 'м': "m", 'н': "n",
	'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t",
	'у': "u", 'ф': "f", 'х': "h", 'ц': "ts", 'ч': "ch",
	'ш': "sh", 'щ': "sch", 'ъ': "", 'ы': "y", 'ь': "",
	'э': "e", 'ю': "yu", 'я': "ya",
}

func translitRu(text string) string {
	var b strings.Builder
	for _, ch := range text {
		low := unicode.ToLower(ch)
		if tr, ok := cyrMap[low]; ok {
			if unicode.IsUpper(ch) && tr != "" {
				b.WriteString(strings.ToUpper(tr[:1]) + tr[1:])
			} else {
				b.WriteString(tr)
			}
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

// accentFold maps common accented Latin letters onto their base letter.
// Together with the non-ASCII drop in Slugify it stands in for
// NFKD-normalize-then-ascii-encode for the scripts this service sees
// (Cyrillic is transliterated above; other non-ASCII runes are dropped).
var accentFold = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ä", "a", "ã", "a", "å", "a",
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"í", "i", "ì", "i", "î", "i", "ï", "i",
	"ó", "o", "ò", "o", "ô", "o", "ö", "o", "õ", "o",
	"ú", "u", "ù", "u", "û", "u", "ü", "u",
	"ñ", "n", "ç", "c", "ý", "y", "ÿ", "y",
	"Á", "A", "À", "A", "Â", "A", "Ä", "A", "Ã", "A", "Å", "A",
	"É", "E", "È", "E", "Ê", "E", "Ë", "E",
	"Í", "I", "Ì", "I", "Î", "I", "Ï", "I",
	"Ó", "O", "Ò", "O", "Ô", "O", "Ö", "O", "Õ", "O",
	"Ú", "U", "Ù", "U", "Û", "U", "Ü", "U",
	"Ñ", "N", "Ç", "C", "Ý", "Y",
)

// Slugify lowercases, transliterates, and reduces text to a [a-z0-9]+ run
// joined by hyphens, truncated to maxLen. Returns "unnamed" for empty input.
// Idempotent: Slugify(Slugify(x), n) == Slugify(x, n).
func Slugify(text string, maxLen int) string {
	t := strings.TrimSpace(text)
	if t == "" {
		return "unnamed"
	}
	t = translitRu(t)
	t = accentFold.Replace(t)

	var b strings.Builder
	for _, ch := range t {
		if ch > unicode.MaxASCII {
			continue
		}
		b.WriteRune(ch)
	}
	t = strings.ToLower(b.String())

	var out strings.Builder
	lastDash := false
	for _, ch := range t {
		if (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') {
			out.WriteRune(ch)
			lastDash = false
			continue
		}
		if !lastDash && out.Len() > 0 {
			out.WriteByte('-')
			lastDash = true
		}
	}
	t = strings.Trim(out.String(), "-")

	if maxLen > 0 && len(t) > maxLen {
		t = t[:maxLen]
	}
	t = strings.TrimRight(t, "-")
	if t == "" {
		return "unnamed"
	}
	return t
}
