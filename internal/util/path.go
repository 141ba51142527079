package util

import (
	"path"
	"strings"
	"time"
)

// BuildSnapshotKey constructs a normalized object key for a slot image.
func BuildSnapshotKey(prefix, device string, when time.Time, extension string) string {
	name := when.UTC().Format("20060102T150405Z") + "_slots"
	if extension != "" {
		name = name + "." + extension
	}
	return path.Join(BuildPrefix(prefix, device), name)
}

// BuildPrefix builds the prefix under which a device's snapshots live.
func BuildPrefix(prefix, device string) string {
	parts := []string{}
	if prefix != "" {
		parts = append(parts, strings.Trim(prefix, "/"))
	}
	if device != "" {
		parts = append(parts, device)
	}
	return path.Join(parts...)
}
