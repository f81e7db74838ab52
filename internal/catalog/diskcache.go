package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type idsCacheFile struct {
	UpdatedAtEpoch int64   `json:"updated_at_epoch"`
	RelationIDs    []int64 `json:"relation_ids"`
}

type itemsCacheFile struct {
	UpdatedAtEpoch int64  `json:"updated_at_epoch"`
	Items          []Item `json:"items"`
}

func (c *Catalog) idsCachePath(adminLevel string, parentRelationID int64) string {
	return filepath.Join(c.CacheDir, "catalog", fmt.Sprintf("ids__%s__al%s.json", scopeToken(parentRelationID), adminLevel))
}

func (c *Catalog) itemsCachePath(adminLevel string, parentRelationID int64) string {
	return filepath.Join(c.CacheDir, "catalog", fmt.Sprintf("items__%s__al%s.json", scopeToken(parentRelationID), adminLevel))
}

func sanitizeSearchQuery(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	var b strings.Builder
	for _, r := range q {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) > 80 {
		s = s[:80]
	}
	if s == "" {
		s = "empty"
	}
	return s
}

func (c *Catalog) searchCachePath(query, adminLevel string, limit int) string {
	al := adminLevel
	if strings.TrimSpace(al) == "" {
		al = "any"
	}
	return filepath.Join(c.CacheDir, "catalog", fmt.Sprintf("search__%s__al%s__l%d.json", sanitizeSearchQuery(query), al, limit))
}

func loadIDsCache(path string, maxAge time.Duration) ([]int64, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var f idsCacheFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, false
	}
	if maxAge != 0 && time.Since(time.Unix(f.UpdatedAtEpoch, 0)) > maxAge {
		return nil, false
	}
	if maxAge == 0 && f.RelationIDs == nil {
		return nil, false
	}
	return f.RelationIDs, true
}

func saveIDsCache(path string, ids []int64) {
	f := idsCacheFile{UpdatedAtEpoch: time.Now().Unix(), RelationIDs: ids}
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	_ = os.WriteFile(path, data, 0o644)
}

func loadItemsCache(path string, maxAge time.Duration) ([]Item, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var f itemsCacheFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, false
	}
	if maxAge > 0 && time.Since(time.Unix(f.UpdatedAtEpoch, 0)) > maxAge {
		return nil, false
	}
	return f.Items, true
}

func saveItemsCache(path string, items []Item) {
	f := itemsCacheFile{UpdatedAtEpoch: time.Now().Unix(), Items: items}
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	_ = os.WriteFile(path, data, 0o644)
}
