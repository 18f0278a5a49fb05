package ir

// typeDefaults are the payload attributes the remote reports on every block
// of a type, whether or not the create request set them. Several of them
// take part in signatures, so local blocks must carry the same values to
// match their unchanged remote copies.
var typeDefaults = map[string]map[string]any{
	"paragraph":          {"color": "default"},
	"heading_1":          {"color": "default", "is_toggleable": false},
	"heading_2":          {"color": "default", "is_toggleable": false},
	"heading_3":          {"color": "default", "is_toggleable": false},
	"bulleted_list_item": {"color": "default"},
	"numbered_list_item": {"color": "default"},
	"to_do":              {"color": "default", "checked": false},
	"quote":              {"color": "default"},
	"toggle":             {"color": "default"},
	"callout":            {"color": "default"},
}

// FillDefaults sets, in place, every remote default for blockType that
// payload lacks. Keys already present are left alone. A nil payload is a
// no-op.
func FillDefaults(blockType string, payload map[string]any) {
	if payload == nil {
		return
	}
	for k, v := range typeDefaults[blockType] {
		if _, ok := payload[k]; !ok {
			payload[k] = v
		}
	}
}
