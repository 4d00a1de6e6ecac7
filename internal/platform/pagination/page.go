// Package pagination normalizes list-query page sizes for the REST APIs.
package pagination

// PageSizeConfig sets the fallback and ceiling for a list operation.
type PageSizeConfig struct {
	Default int
	Max     int
}

// ClampPageSize resolves a requested page size against cfg. Zero and
// negative requests take the default; oversized requests are capped at
// the maximum. The result is always at least 1 so a misconfigured
// default cannot produce an empty page loop.
func ClampPageSize(value int32, cfg PageSizeConfig) int {
	pageSize := int(value)
	if pageSize <= 0 {
		pageSize = cfg.Default
	}
	if cfg.Max > 0 && pageSize > cfg.Max {
		pageSize = cfg.Max
	}
	if pageSize <= 0 {
		pageSize = 1
	}
	return pageSize
}
