// Package schemas embeds the JSON Schemas shipped with the tool.
package schemas

import (
	_ "embed"
)

// UploadTask is the schema every uploaded conversation document must satisfy.
//
//go:embed upload_task.schema.json
var UploadTask string
