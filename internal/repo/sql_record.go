package repo

import "time"

// NodeRecord stores one node of the content tree
type NodeRecord struct {
	ID         uint   `gorm:"primaryKey;autoIncrement;column:id"`
	Path       string `gorm:"column:path;uniqueIndex:idx_content_nodes_path;not null"`
	ParentPath string `gorm:"column:parent_path;index:idx_content_nodes_parent;not null"`
	Ordinal    int    `gorm:"column:ordinal;not null"` // position among siblings

	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// TableName specifies the table name for GORM
func (NodeRecord) TableName() string {
	return "content_nodes"
}

// PropertyRecord stores one property of a node
type PropertyRecord struct {
	ID       uint   `gorm:"primaryKey;autoIncrement;column:id"`
	NodePath string `gorm:"column:node_path;uniqueIndex:idx_content_properties_key,priority:1;not null"`
	Name     string `gorm:"column:name;uniqueIndex:idx_content_properties_key,priority:2;not null"`
	Type     string `gorm:"column:type;not null"`
	Multiple bool   `gorm:"column:multiple;type:integer"`

	// Values is the JSON array of encoded values, empty for binaries
	Values string `gorm:"column:encoded_values;type:text"`
	Data   []byte `gorm:"column:data;type:blob"`
	Size   int64  `gorm:"column:size"`
}

// TableName specifies the table name for GORM
func (PropertyRecord) TableName() string {
	return "content_properties"
}
