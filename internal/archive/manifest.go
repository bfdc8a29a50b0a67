package archive

import "time"

// Manifest is the first entry of every archive. It records the export
// parameters so an importer can re-root the content.
type Manifest struct {
	Type      string    `json:"type"`
	Format    string    `json:"format"`
	Version   string    `json:"version"`
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	// Package identity, blank for a transient export
	Group string `json:"group"`
	Name  string `json:"name"`

	RootPath  string   `json:"root_path"`
	MountPath string   `json:"mount_path"`
	NodeOnly  bool     `json:"node_only"`
	Exclude   []string `json:"exclude"`
}

// NewManifest fills the format markers; Exclude is never nil
func NewManifest(id, group, name, rootPath, mountPath string, nodeOnly bool, exclude []string) *Manifest {
	if exclude == nil {
		exclude = []string{}
	}
	return &Manifest{
		Type:      EntryTypeManifest,
		Format:    FormatName,
		Version:   CurrentVersion,
		ID:        id,
		CreatedAt: time.Now().UTC(),
		Group:     group,
		Name:      name,
		RootPath:  rootPath,
		MountPath: mountPath,
		NodeOnly:  nodeOnly,
		Exclude:   exclude,
	}
}

// Identified reports whether the archive carries a package identity
func (m *Manifest) Identified() bool {
	return m.Group != "" || m.Name != ""
}
