// Package jsonfile loads a static promotional catalog from a JSON file.
// Handy for demos and fixtures; coupon lifecycle calls are served from
// the same file's coupon list, in memory only.
package jsonfile

import (
	"encoding/json"
	"fmt"
	"os"

	"promokit/adapters/memory"
	"promokit/core"
	"promokit/engine"
)

// File is the on-disk catalog layout.
type File struct {
	Programs []*core.Program         `json:"programs"`
	Coupons  map[string]*core.Coupon `json:"coupons,omitempty"` // keyed by code
}

// Load reads the catalog file into an in-memory CatalogSource.
func Load(path string) (engine.CatalogSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file %s: %w", path, err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog file %s: %w", path, err)
	}
	src := memory.New()
	src.SeedPrograms(f.Programs...)
	for code, c := range f.Coupons {
		src.SeedCoupon(code, c)
	}
	return src, nil
}
