package schema

import "github.com/alfredjeanlab/moisturizer/internal/model"

// Flatten returns payload with nested objects spread into one entry per
// leaf, each named by joining its keys with model.NestSeparator. An
// object under a name for which whole reports true is kept as one value.
// Empty objects contribute nothing.
func Flatten(payload map[string]any, whole func(name string) bool) map[string]any {
	out := make(map[string]any, len(payload))
	flattenInto(out, "", payload, whole)
	return out
}

func flattenInto(out map[string]any, prefix string, obj map[string]any, whole func(string) bool) {
	for k, v := range obj {
		name := k
		if prefix != "" {
			name = prefix + model.NestSeparator + k
		}
		if nested, ok := v.(map[string]any); ok && (whole == nil || !whole(name)) {
			flattenInto(out, name, nested, whole)
			continue
		}
		out[name] = v
	}
}

// ObjectFields reports, for d, whether a name is declared as an object
// field and so is stored whole rather than flattened.
func ObjectFields(d *model.TypeDescriptor) func(name string) bool {
	return func(name string) bool {
		spec, ok := d.Properties.Get(name)
		return ok && spec.Kind == model.KindObject
	}
}
