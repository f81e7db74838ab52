package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/MeKo-Tech/osmboundaries/internal/tagset"
)

// SearchAdminAreas matches query against cached country items (admin_level
// 2) in memory, or builds a regex/ISO Overpass query otherwise.
func (c *Catalog) SearchAdminAreas(ctx context.Context, query, adminLevel string, limit int) ([]Item, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	cachePath := c.searchCachePath(q, adminLevel, limit)
	if cached, ok := loadItemsCache(cachePath, searchCacheTTL); ok {
		if len(cached) > limit {
			cached = cached[:limit]
		}
		return cached, nil
	}

	if adminLevel == "2" {
		out, err := c.searchCountriesLocal(ctx, q, limit)
		if err != nil {
			return nil, err
		}
		saveItemsCache(cachePath, out)
		return out, nil
	}

	out, err := c.searchRemote(ctx, q, adminLevel, limit)
	if err != nil {
		return nil, err
	}
	saveItemsCache(cachePath, out)
	return out, nil
}

type scoredItem struct {
	score int
	item  Item
}

func isShortASCIIWord(s string) bool {
	if len(s) < 2 || len(s) > 3 {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}

func (c *Catalog) searchCountriesLocal(ctx context.Context, query string, limit int) ([]Item, error) {
	items, err := c.ListCountriesItemsFast(ctx)
	if err != nil {
		return nil, err
	}
	qNorm := strings.ToLower(query)
	qUpper := strings.ToUpper(query)
	isoQuery := ""
	if isShortASCIIWord(query) {
		isoQuery = qUpper
	}

	var scored []scoredItem
	for _, item := range items {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			name = tagset.PreferredName(item.Tags)
		}
		if name == "" {
			continue
		}
		haystacks := []string{
			strings.ToLower(name),
			strings.ToLower(item.Tags["name:en"]),
			strings.ToLower(item.Tags["int_name"]),
			strings.ToLower(item.Tags["official_name"]),
		}
		isoHaystacks := []string{
			strings.ToUpper(item.Tags["ISO3166-1"]),
			strings.ToUpper(item.Tags["ISO3166-1:alpha2"]),
			strings.ToUpper(item.Tags["ISO3166-1:alpha3"]),
		}

		matched := false
		for _, h := range haystacks {
			if h != "" && strings.Contains(h, qNorm) {
				matched = true
				break
			}
		}
		isoMatch := false
		if isoQuery != "" {
			for _, h := range isoHaystacks {
				if h != "" && h == isoQuery {
					isoMatch = true
					break
				}
			}
		}
		if !matched && !isoMatch {
			continue
		}

		score := 100
		if strings.HasPrefix(strings.ToLower(name), qNorm) {
			score -= 25
		}
		if isoMatch {
			score -= 40
		}
		scored = append(scored, scoredItem{score: score, item: item})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score < scored[j].score
		}
		return scored[i].item.Name < scored[j].item.Name
	})

	if limit > len(scored) {
		limit = len(scored)
	}
	out := make([]Item, limit)
	for i := 0; i < limit; i++ {
		out[i] = scored[i].item
	}
	return out, nil
}

func escapeOverpassRegex(q string) string {
	q = strings.ReplaceAll(q, `\`, `\\`)
	q = strings.ReplaceAll(q, `"`, `\"`)
	return q
}

func (c *Catalog) searchRemote(ctx context.Context, query, adminLevel string, limit int) ([]Item, error) {
	escaped := escapeOverpassRegex(query)
	upper := strings.ToUpper(query)

	alClause := ""
	if strings.TrimSpace(adminLevel) != "" {
		alClause = fmt.Sprintf(`["admin_level"="%s"]`, adminLevel)
	}

	var clauses []string
	clauses = append(clauses, fmt.Sprintf(`rel["boundary"="administrative"]%s[name~"%s",i];`, alClause, escaped))
	clauses = append(clauses, fmt.Sprintf(`rel["boundary"="administrative"]%s["name:en"~"%s",i];`, alClause, escaped))
	clauses = append(clauses, fmt.Sprintf(`rel["boundary"="administrative"]%s[int_name~"%s",i];`, alClause, escaped))
	clauses = append(clauses, fmt.Sprintf(`rel["boundary"="administrative"]%s[official_name~"%s",i];`, alClause, escaped))
	if isShortASCIIWord(query) {
		clauses = append(clauses, fmt.Sprintf(`rel["boundary"="administrative"]%s["ISO3166-1"="%s"];`, alClause, upper))
		clauses = append(clauses, fmt.Sprintf(`rel["boundary"="administrative"]%s["ISO3166-1:alpha2"="%s"];`, alClause, upper))
		clauses = append(clauses, fmt.Sprintf(`rel["boundary"="administrative"]%s["ISO3166-1:alpha3"="%s"];`, alClause, upper))
	}
	body := strings.Join(clauses, "\n")
	timeout := c.timeoutSeconds()

	q1 := fmt.Sprintf("[out:json][timeout:%d];\n(\n%s\n);\nout tags bb center;", timeout, body)
	res, err := c.Client.Submit(ctx, q1, "")
	if err != nil {
		q2 := fmt.Sprintf("[out:json][timeout:%d];\n(\n%s\n);\nout tags center;", timeout, body)
		res, err = c.Client.Submit(ctx, q2, "")
		if err != nil {
			return nil, err
		}
	}

	var out []Item
	for _, item := range itemsFromElements(res.Payload) {
		if tagset.PreferredName(item.Tags) == "" && item.Name == "" {
			continue
		}
		out = append(out, item)
	}
	sortItemsByName(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
