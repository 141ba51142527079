package util

import (
	"strings"
	"testing"
	"time"
)

func TestBuildSnapshotKey(t *testing.T) {
	when := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	key := BuildSnapshotKey("/fleet/", "hall-trv", when, "img.zst")
	if !strings.HasPrefix(key, "fleet/hall-trv/") {
		t.Fatalf("unexpected prefix: %s", key)
	}
	if !strings.HasSuffix(key, "20240101T100000Z_slots.img.zst") {
		t.Fatalf("unexpected suffix: %s", key)
	}
}

func TestBuildPrefix(t *testing.T) {
	if got := BuildPrefix("", "hall-trv"); got != "hall-trv" {
		t.Fatalf("unexpected prefix: %s", got)
	}
	if got := BuildPrefix("fleet", ""); got != "fleet" {
		t.Fatalf("unexpected prefix: %s", got)
	}
}
