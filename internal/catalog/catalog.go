// Package catalog lists and searches administrative-boundary relations
// through Overpass, backed by disk TTL caches with stale-on-failure
// fallback, so repeated UI browsing rarely needs a live query.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/osmboundaries/internal/overpass"
	"github.com/MeKo-Tech/osmboundaries/internal/tagset"
)

const (
	areaIDOffset     = 3600000000
	idsCacheTTL      = 24 * time.Hour
	itemsCacheTTL    = 24 * time.Hour
	searchCacheTTL   = 6 * time.Hour
	detailsChunkSize = 120
)

// Item is one catalog entry: a relation plus its display name, tags, and
// optional center/bounds (present only when fetched via details/search).
type Item struct {
	RelationID int64          `json:"relation_id"`
	Name       string         `json:"name"`
	Tags       tagset.Tags    `json:"tags"`
	Center     map[string]any `json:"center,omitempty"`
	Bounds     map[string]any `json:"bounds,omitempty"`
}

// Catalog wraps an Overpass client and a disk cache directory.
type Catalog struct {
	Client   *overpass.Client
	CacheDir string
	Timeout  time.Duration
}

func New(client *overpass.Client, cacheDir string, timeout time.Duration) *Catalog {
	return &Catalog{Client: client, CacheDir: cacheDir, Timeout: timeout}
}

func areaIDFromRelation(rid int64) int64 { return areaIDOffset + rid }

func scopeToken(parentRelationID int64) string {
	if parentRelationID == 0 {
		return "world"
	}
	return fmt.Sprintf("r%d", parentRelationID)
}

func elementsToTags(el map[string]any) tagset.Tags {
	raw, _ := el["tags"].(map[string]any)
	out := make(tagset.Tags, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func relationsFromPayload(payload map[string]any) []map[string]any {
	raw, _ := payload["elements"].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, v := range raw {
		el, ok := v.(map[string]any)
		if !ok {
			continue
		}
		if s, _ := el["type"].(string); strings.ToLower(s) != "relation" {
			continue
		}
		out = append(out, el)
	}
	return out
}

func relationID(el map[string]any) (int64, bool) {
	switch v := el["id"].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	default:
		return 0, false
	}
}

// ListCountriesItemsFast returns every admin_level=2 relation with its tags,
// sorted by name, backed by a 24h disk cache with stale fallback.
func (c *Catalog) ListCountriesItemsFast(ctx context.Context) ([]Item, error) {
	cachePath := c.itemsCachePath("2", 0)
	if fresh, ok := loadItemsCache(cachePath, itemsCacheTTL); ok {
		return fresh, nil
	}
	stale, _ := loadItemsCache(cachePath, 0)

	q := fmt.Sprintf("[out:json][timeout:%d];\nrel[\"boundary\"=\"administrative\"][\"admin_level\"=\"2\"][\"type\"=\"boundary\"];\nout tags;", c.timeoutSeconds())
	res, err := c.Client.Submit(ctx, q, "")
	if err != nil {
		if stale != nil {
			return stale, nil
		}
		return nil, err
	}

	out := itemsFromElements(res.Payload)
	sortItemsByName(out)
	saveItemsCache(cachePath, out)
	return out, nil
}

// ListParentItemsFast lists the child relations of parentRelationID at
// adminLevel, trying three Overpass query variants in sequence.
func (c *Catalog) ListParentItemsFast(ctx context.Context, adminLevel string, parentRelationID int64) ([]Item, error) {
	cachePath := c.itemsCachePath(adminLevel, parentRelationID)
	if fresh, ok := loadItemsCache(cachePath, itemsCacheTTL); ok {
		return fresh, nil
	}
	stale, _ := loadItemsCache(cachePath, 0)

	areaID := areaIDFromRelation(parentRelationID)
	timeout := c.timeoutSeconds()
	queries := []string{
		fmt.Sprintf("[out:json][timeout:%d];\nrelation(%d);\nmap_to_area->.a;\nrel(area.a)[\"boundary\"=\"administrative\"][\"admin_level\"=\"%s\"][\"type\"=\"boundary\"];\nout tags;",
			timeout, parentRelationID, adminLevel),
		fmt.Sprintf("[out:json][timeout:%d];\narea(%d)->.a;\nrel(area.a)[\"boundary\"=\"administrative\"][\"admin_level\"=\"%s\"][\"type\"=\"boundary\"];\nout tags;",
			timeout, areaID, adminLevel),
		fmt.Sprintf("[out:json][timeout:%d];\nrelation(%d)->.p;\nrel(r.p)[\"boundary\"=\"administrative\"][\"admin_level\"=\"%s\"][\"type\"=\"boundary\"];\nout tags;",
			timeout, parentRelationID, adminLevel),
	}

	var lastErr error
	for _, q := range queries {
		res, err := c.Client.Submit(ctx, q, "")
		if err != nil {
			lastErr = err
			continue
		}
		out := itemsFromElements(res.Payload)
		sortItemsByName(out)
		saveItemsCache(cachePath, out)
		return out, nil
	}
	if stale != nil {
		return stale, nil
	}
	return nil, lastErr
}

// ListRelationIDs returns just the ids for a scope, world scope requiring
// adminLevel=="2" is enforced by the caller (server layer), not here.
func (c *Catalog) ListRelationIDs(ctx context.Context, adminLevel string, parentRelationID int64) ([]int64, error) {
	cachePath := c.idsCachePath(adminLevel, parentRelationID)
	if fresh, ok := loadIDsCache(cachePath, idsCacheTTL); ok {
		return fresh, nil
	}
	stale, _ := loadIDsCache(cachePath, 0)

	timeout := c.timeoutSeconds()
	var res *overpass.Result
	var err error
	if parentRelationID != 0 {
		areaID := areaIDFromRelation(parentRelationID)
		qArea := fmt.Sprintf("[out:json][timeout:%d];\narea(%d)->.a;\nrel(area.a)[\"boundary\"=\"administrative\"][\"admin_level\"=\"%s\"];\nout ids;",
			timeout, areaID, adminLevel)
		res, err = c.Client.Submit(ctx, qArea, "")
		if err != nil {
			qMembers := fmt.Sprintf("[out:json][timeout:%d];\nrelation(%d)->.p;\nrel(r.p)[\"boundary\"=\"administrative\"][\"admin_level\"=\"%s\"];\nout ids;",
				timeout, parentRelationID, adminLevel)
			res, err = c.Client.Submit(ctx, qMembers, "")
		}
	} else {
		q := fmt.Sprintf("[out:json][timeout:%d];\nrel[\"boundary\"=\"administrative\"][\"admin_level\"=\"%s\"];\nout ids;", timeout, adminLevel)
		res, err = c.Client.Submit(ctx, q, "")
	}
	if err != nil {
		if stale != nil {
			return stale, nil
		}
		return nil, err
	}

	seen := map[int64]struct{}{}
	var ids []int64
	for _, el := range relationsFromPayload(res.Payload) {
		rid, ok := relationID(el)
		if !ok {
			continue
		}
		if _, dup := seen[rid]; dup {
			continue
		}
		seen[rid] = struct{}{}
		ids = append(ids, rid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	saveIDsCache(cachePath, ids)
	return ids, nil
}

// FetchRelationDetails resolves tags/center/bounds for a batch of relation
// ids, chunked to avoid overly large Overpass queries.
func (c *Catalog) FetchRelationDetails(ctx context.Context, ids []int64) ([]Item, error) {
	var out []Item
	timeout := c.timeoutSeconds()

	fetchChunk := func(chunk []int64) ([]Item, error) {
		joined := joinIDs(chunk)
		q1 := fmt.Sprintf("[out:json][timeout:%d];\nrelation(%s);\nout tags bb center;", timeout, joined)
		res, err := c.Client.Submit(ctx, q1, "")
		if err != nil {
			q2 := fmt.Sprintf("[out:json][timeout:%d];\nrelation(%s);\nout tags center;", timeout, joined)
			res, err = c.Client.Submit(ctx, q2, "")
			if err != nil {
				return nil, err
			}
		}
		return itemsFromElementsWithCenterBounds(res.Payload), nil
	}

	for i := 0; i < len(ids); i += detailsChunkSize {
		end := i + detailsChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[i:end]
		items, err := fetchChunk(chunk)
		if err != nil {
			for _, rid := range chunk {
				single, serr := fetchChunk([]int64{rid})
				if serr != nil {
					continue
				}
				out = append(out, single...)
			}
			continue
		}
		out = append(out, items...)
	}
	sortItemsByName(out)
	return out, nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func (c *Catalog) timeoutSeconds() int {
	if c.Timeout <= 0 {
		return 180
	}
	return int(c.Timeout.Seconds())
}

func itemsFromElements(payload map[string]any) []Item {
	var out []Item
	for _, el := range relationsFromPayload(payload) {
		rid, ok := relationID(el)
		if !ok {
			continue
		}
		tags := elementsToTags(el)
		name := tagset.PreferredName(tags)
		if name == "" {
			name = fmt.Sprintf("relation %d", rid)
		}
		item := Item{RelationID: rid, Name: name, Tags: tags}
		if center, ok := el["center"].(map[string]any); ok {
			item.Center = center
		}
		if bounds, ok := el["bounds"].(map[string]any); ok {
			item.Bounds = bounds
		}
		out = append(out, item)
	}
	return out
}

func itemsFromElementsWithCenterBounds(payload map[string]any) []Item {
	return itemsFromElements(payload)
}

func sortItemsByName(items []Item) {
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
}
