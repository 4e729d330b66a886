// Package docs projects current graph state into a frontmatter-plus-body
// document tree and parses the same tree back. The sync hash carried in each
// document's frontmatter is the sole content identity the reconciler trusts.
package docs

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"engram/internal/schema"
)

// ComputeSyncHash hashes the user-property projection of a state: keys
// beginning with an underscore are temporal meta and never participate.
// Output is lowercase hex SHA-1 over a canonical byte form, so two states
// hash equal exactly when their user properties are deep-equal.
func ComputeSyncHash(props map[string]interface{}) string {
	user := make(map[string]interface{}, len(props))
	for k, v := range props {
		if strings.HasPrefix(k, "_") {
			continue
		}
		user[k] = schema.NormalizeValue(v)
	}
	var buf bytes.Buffer
	writeCanonical(&buf, user)
	sum := sha1.Sum(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

// writeCanonical renders a normalized value as deterministic JSON: sorted
// object keys, shortest float form, ordered lists. Values reach here already
// normalized (integral numbers as int64, containers as map/[]interface{}),
// which keeps the byte form stable across YAML, JSON, and storage decode
// paths.
func writeCanonical(buf *bytes.Buffer, v interface{}) {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if x {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case int64:
		buf.WriteString(strconv.FormatInt(x, 10))
	case float64:
		buf.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
	case string:
		b, _ := json.Marshal(x)
		buf.Write(b)
	case []interface{}:
		buf.WriteByte('[')
		for i, el := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonical(buf, el)
		}
		buf.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			writeCanonical(buf, x[k])
		}
		buf.WriteByte('}')
	default:
		b, _ := json.Marshal(x)
		buf.Write(b)
	}
}
