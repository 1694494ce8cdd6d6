package policy

// deepMergeKeys are the top-level policy keys merged entry by entry: a tenant
// file can add or override a single doctype without restating the rest.
// Every other top-level key is a wholesale override.
var deepMergeKeys = map[string]struct{}{
	"pqc_doctypes":    {},
	"sensitive_roles": {},
}

// MergeLayer applies one policy layer on top of base and returns base.
// Top-level keys shallow-override except the declared deep-merge keys, whose
// map values merge key by key.
func MergeLayer(base, layer map[string]any) map[string]any {
	if base == nil {
		base = map[string]any{}
	}
	for k, v := range layer {
		if _, deep := deepMergeKeys[k]; !deep {
			base[k] = v
			continue
		}
		over, ok := v.(map[string]any)
		if !ok {
			// A non-map value under a deep-merge key still overrides; the
			// layer author gets what they wrote.
			base[k] = v
			continue
		}
		cur, ok := base[k].(map[string]any)
		if !ok {
			cur = map[string]any{}
		}
		for ik, iv := range over {
			cur[ik] = iv
		}
		base[k] = cur
	}
	return base
}
