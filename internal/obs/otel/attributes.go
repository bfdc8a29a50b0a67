package otel

import "go.opentelemetry.io/otel/attribute"

// Attributes attached to export metrics
var (
	// AttrExportFormat is the archive format (jsonl, zstd, base64)
	AttrExportFormat = attribute.Key("nodepack.export.format")

	// AttrExportNodeOnly indicates whether descendants were skipped
	AttrExportNodeOnly = attribute.Key("nodepack.export.node_only")

	// AttrExportStatus is "success" or an error kind such as "not_found"
	AttrExportStatus = attribute.Key("nodepack.export.status")
)
