// Package blob selects and exposes the screenshot blob store.
package blob

import (
	"millroom/internal/blob/core"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrExists   = core.ErrExists
	ErrNotFound = core.ErrNotFound
)

// ScreenshotKey re-exports core.ScreenshotKey.
func ScreenshotKey(puckID, name string) string { return core.ScreenshotKey(puckID, name) }
