package overpass

// LatLon is a bare geographic point as Overpass emits it in a way's
// "geometry" array.
type LatLon struct {
	Lat float64
	Lon float64
}

// Member is one entry of a relation's "members" array.
type Member struct {
	Type string // "way" | "node" | "relation"
	Ref  int64
	Role string
}

// Node is a decoded "node" element.
type Node struct {
	ID   int64
	Lat  float64
	Lon  float64
	Tags map[string]string
}

// Way is a decoded "way" element.
type Way struct {
	ID       int64
	NodeRefs []int64
	Geometry []LatLon
	Tags     map[string]string
}

// Relation is a decoded "relation" element.
type Relation struct {
	ID      int64
	Members []Member
	Tags    map[string]string
}

// Elements is the parsed form of an Overpass "elements" array, grouped by
// type for convenient lookup by the geometry builder and the catalog.
type Elements struct {
	Nodes     map[int64]*Node
	Ways      map[int64]*Way
	Relations map[int64]*Relation
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

func asTags(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok {
		return map[string]string{}
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		if s, ok := val.(string); ok {
			out[k] = s
		}
	}
	return out
}

// ParseElements decodes a raw Overpass "elements" array (as found under
// payload["elements"]) into typed Node/Way/Relation collections, dropping
// any element whose "type" is not recognized.
func ParseElements(raw []any) *Elements {
	out := &Elements{
		Nodes:     map[int64]*Node{},
		Ways:      map[int64]*Way{},
		Relations: map[int64]*Relation{},
	}
	for _, item := range raw {
		el, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id := asInt64(el["id"])
		switch asString(el["type"]) {
		case "node":
			out.Nodes[id] = &Node{
				ID:   id,
				Lat:  toFloat(el["lat"]),
				Lon:  toFloat(el["lon"]),
				Tags: asTags(el["tags"]),
			}
		case "way":
			w := &Way{ID: id, Tags: asTags(el["tags"])}
			if nodes, ok := el["nodes"].([]any); ok {
				for _, n := range nodes {
					w.NodeRefs = append(w.NodeRefs, asInt64(n))
				}
			}
			if geom, ok := el["geometry"].([]any); ok {
				for _, g := range geom {
					pt, ok := g.(map[string]any)
					if !ok {
						continue
					}
					w.Geometry = append(w.Geometry, LatLon{Lat: toFloat(pt["lat"]), Lon: toFloat(pt["lon"])})
				}
			}
			out.Ways[id] = w
		case "relation":
			r := &Relation{ID: id, Tags: asTags(el["tags"])}
			if members, ok := el["members"].([]any); ok {
				for _, m := range members {
					mm, ok := m.(map[string]any)
					if !ok {
						continue
					}
					r.Members = append(r.Members, Member{
						Type: asString(mm["type"]),
						Ref:  asInt64(mm["ref"]),
						Role: asString(mm["role"]),
					})
				}
			}
			out.Relations[id] = r
		}
	}
	return out
}

func toFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}

// ElementsOf decodes payload["elements"] directly, returning an empty
// collection if the key is absent or not a list.
func ElementsOf(payload map[string]any) *Elements {
	raw, _ := payload["elements"].([]any)
	return ParseElements(raw)
}
