package extract

// Normalize coerces each map element of values into a record of kind.
// Elements that are not maps are skipped; order is preserved.
func Normalize(values []any, kind SchemaKind) []Record {
	proto := kind.prototype()
	out := make([]Record, 0, len(values))
	for _, v := range values {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, proto.Coerce(m))
	}
	return out
}
