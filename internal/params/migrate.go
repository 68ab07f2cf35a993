package params

import (
	"fmt"
	"maps"
)

// Migrate upgrades a params document to the current schema. The input map is
// not modified.
//
//   - v0 -> v1: urlsource was 0 ("list") or 1 ("column").
//   - v1 -> v2: adds the "paged" source and its parameters.
//   - v2 -> v3: adds addpagenumbers, true to match v2 behaviour.
func Migrate(raw map[string]any) (map[string]any, error) {
	params := maps.Clone(raw)
	if params == nil {
		params = map[string]any{}
	}
	if n, ok := asInt(params["urlsource"]); ok {
		var err error
		if params, err = migrateV0ToV1(params, n); err != nil {
			return nil, err
		}
	}
	if _, ok := params["pagedurl"]; !ok {
		params = migrateV1ToV2(params)
	}
	if _, ok := params["addpagenumbers"]; !ok {
		params = migrateV2ToV3(params)
	}
	return params, nil
}

func migrateV0ToV1(params map[string]any, source int) (map[string]any, error) {
	switch source {
	case 0:
		params["urlsource"] = "list"
	case 1:
		params["urlsource"] = "column"
	default:
		return nil, fmt.Errorf("migrate params: unknown v0 urlsource %d", source)
	}
	return params, nil
}

func migrateV1ToV2(params map[string]any) map[string]any {
	params["pagedurl"] = ""
	params["addpagenumbers"] = false
	params["startpage"] = 0
	params["endpage"] = 9
	return params
}

func migrateV2ToV3(params map[string]any) map[string]any {
	params["addpagenumbers"] = true
	return params
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}
