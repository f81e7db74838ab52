package storage

import (
	"encoding/json"
	"os"
)

// ManifestEntry records what is known about one relation's on-disk output
// within a scope.
type ManifestEntry struct {
	RelationID      int64  `json:"relation_id"`
	Name            string `json:"name"`
	Slug            string `json:"slug"`
	UpdatedAtEpoch  int64  `json:"updated_at_epoch"`
	OSMSourceFile   string `json:"osm_source_file"`
	LandOnlyFile    string `json:"land_only_file,omitempty"`
}

// Manifest is the scope-level index rewritten after every job run.
type Manifest struct {
	AdmName        string                   `json:"adm_name"`
	AdminLevel     string                   `json:"admin_level"`
	UpdatedAtEpoch int64                    `json:"updated_at_epoch"`
	Objects        map[string]*ManifestEntry `json:"objects"`
}

// LoadManifest reads a scope's manifest.json, returning an empty manifest
// (not an error) if the file does not exist yet.
func LoadManifest(path, admName, adminLevel string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Manifest{AdmName: admName, AdminLevel: adminLevel, Objects: map[string]*ManifestEntry{}}, nil
		}
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.Objects == nil {
		m.Objects = map[string]*ManifestEntry{}
	}
	return &m, nil
}

// Save rewrites the manifest atomically.
func (m *Manifest) Save(path string) error {
	data, err := marshalNoEscape(m)
	if err != nil {
		return err
	}
	return atomicWrite(path, data)
}
