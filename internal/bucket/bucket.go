// Package bucket implements thunder's hierarchical namespace layer: logical
// buckets (and buckets nested inside buckets, up to a bounded depth) layered
// over the flat ordered map by prefixing every key with a tag byte and the
// bucket's path (§4.5). This keeps all data in one working set while giving
// each bucket its own disjoint keyspace.
package bucket

import (
	"github.com/cuemby/thunder/internal/omap"
	"github.com/cuemby/thunder/internal/terr"
)

// Tag bytes distinguish bucket marker entries from data entries, and
// top-level buckets from nested ones, so none of the four families can ever
// collide with one another or with a plain root-level key (§3).
const (
	metaTag       byte = 0x00
	dataTag       byte = 0x01
	nestedMetaTag byte = 0x02
	nestedDataTag byte = 0x03
	rootTag       byte = 0x04
)

// RootKey returns the key under which userKey is stored when a transaction
// operates directly on the database's root keyspace, with no bucket
// involved. It is tagged the same way bucket keys are so a root-level key
// can never collide with any bucket's marker or data entries.
func RootKey(userKey []byte) []byte {
	return encodeFlat(rootTag, "", userKey)
}

// MaxNameLen is the longest a single bucket name component may be.
const MaxNameLen = 255

// MaxDepth is the deepest a chain of nested buckets may go.
const MaxDepth = 16

// Path identifies a bucket: one component for a top-level bucket, more for
// buckets nested inside it.
type Path []string

// Validate checks every component's length and the path's overall depth.
func (p Path) Validate() error {
	if len(p) == 0 {
		return terr.New(terr.KindInvalidBucketName, "bucket path cannot be empty")
	}
	if len(p) > MaxDepth {
		return terr.New(terr.KindInvalidBucketName, "bucket nesting exceeds maximum depth of 16")
	}
	for _, name := range p {
		if err := validateName(name); err != nil {
			return err
		}
	}
	return nil
}

func validateName(name string) error {
	if len(name) == 0 {
		return terr.New(terr.KindInvalidBucketName, "bucket name cannot be empty")
	}
	if len(name) > MaxNameLen {
		return terr.New(terr.KindInvalidBucketName, "bucket name exceeds maximum length of 255 bytes")
	}
	return nil
}

// MetaKey returns the marker-entry key a transaction should stage when
// creating bucket p, so its WAL record and omap entry agree byte-for-byte
// with what Exists later looks up.
func MetaKey(p Path) []byte {
	return metaKey(p)
}

// DataKey returns the key under which userKey is stored inside bucket p,
// exported so a transaction can stage the exact bytes Put/Get will use.
func DataKey(p Path, userKey []byte) []byte {
	return dataKey(p, userKey)
}

// metaKey returns the marker-entry key for path: for a single-component
// path it uses the flat [metaTag|len|name] form; deeper paths use the
// nested [nestedMetaTag|depth|len1|name1|...] form.
func metaKey(p Path) []byte {
	if len(p) == 1 {
		return encodeFlat(metaTag, p[0], nil)
	}
	return encodeNested(nestedMetaTag, p, nil)
}

// dataKey returns the key under which userKey is stored inside bucket p.
func dataKey(p Path, userKey []byte) []byte {
	if len(p) == 1 {
		return encodeFlat(dataTag, p[0], userKey)
	}
	return encodeNested(nestedDataTag, p, userKey)
}

// dataPrefix returns the prefix shared by every data key in bucket p, used
// for range scans.
func dataPrefix(p Path) []byte {
	return dataKey(p, nil)
}

func encodeFlat(tag byte, name string, suffix []byte) []byte {
	buf := make([]byte, 0, 2+len(name)+len(suffix))
	buf = append(buf, tag, byte(len(name)))
	buf = append(buf, name...)
	buf = append(buf, suffix...)
	return buf
}

func encodeNested(tag byte, p Path, suffix []byte) []byte {
	size := 2
	for _, name := range p {
		size += 1 + len(name)
	}
	size += len(suffix)
	buf := make([]byte, 0, size)
	buf = append(buf, tag, byte(len(p)))
	for _, name := range p {
		buf = append(buf, byte(len(name)))
		buf = append(buf, name...)
	}
	buf = append(buf, suffix...)
	return buf
}

// Exists reports whether bucket p has a marker entry in m.
func Exists(m *omap.Map, p Path) bool {
	_, ok := m.Get(metaKey(p))
	return ok
}

// Create installs bucket p's marker entry. If p has more than one
// component, the parent path (p[:len(p)-1]) must already exist.
func Create(m *omap.Map, p Path) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if len(p) > 1 && !Exists(m, p[:len(p)-1]) {
		return terr.Wrap(terr.KindBucketNotFound, "parent bucket missing", terr.New(terr.KindBucketNotFound, joinPath(p[:len(p)-1])))
	}
	key := metaKey(p)
	if _, ok := m.Get(key); ok {
		return terr.New(terr.KindBucketAlreadyExists, joinPath(p))
	}
	m.Put(key, nil)
	return nil
}

// CreateIfNotExists is Create but reports whether a new bucket was made
// instead of failing when one already exists.
func CreateIfNotExists(m *omap.Map, p Path) (created bool, err error) {
	if err := p.Validate(); err != nil {
		return false, err
	}
	if Exists(m, p) {
		return false, nil
	}
	return true, Create(m, p)
}

// Delete removes bucket p's marker and every data entry beneath it,
// cascading to any descendant buckets whose path is prefixed by p.
//
// The depth byte nested keys carry right after their tag (encodeNested)
// means a raw byte-prefix comparison against p's own encoding can never
// match a descendant's longer encoding: the depth byte itself differs
// before any path component is compared. Cascade matching therefore
// decodes each candidate key back into its path and compares path
// components directly instead of comparing encoded bytes.
func Delete(m *omap.Map, p Path) error {
	if err := p.Validate(); err != nil {
		return err
	}
	key := metaKey(p)
	if _, ok := m.Get(key); !ok {
		return terr.New(terr.KindBucketNotFound, joinPath(p))
	}

	var toDelete [][]byte
	m.Ascend(func(k, _ []byte) bool {
		_, path, _, ok := decodeKey(k)
		if ok && hasPathPrefix(path, p) {
			toDelete = append(toDelete, append([]byte(nil), k...))
		}
		return true
	})
	for _, k := range toDelete {
		m.Delete(k)
	}
	return nil
}

// decodeKey parses a bucket-tagged key back into its tag, path, and any
// trailing suffix (a data key's user key, or nothing for a marker). ok is
// false for keys this package didn't encode (e.g. a root-level key).
func decodeKey(k []byte) (tag byte, path Path, suffix []byte, ok bool) {
	if len(k) < 2 {
		return 0, nil, nil, false
	}
	tag = k[0]
	switch tag {
	case metaTag, dataTag:
		nameLen := int(k[1])
		if len(k) < 2+nameLen {
			return 0, nil, nil, false
		}
		return tag, Path{string(k[2 : 2+nameLen])}, k[2+nameLen:], true
	case nestedMetaTag, nestedDataTag:
		depth := int(k[1])
		pos := 2
		path = make(Path, 0, depth)
		for i := 0; i < depth; i++ {
			if pos >= len(k) {
				return 0, nil, nil, false
			}
			nameLen := int(k[pos])
			pos++
			if pos+nameLen > len(k) {
				return 0, nil, nil, false
			}
			path = append(path, string(k[pos:pos+nameLen]))
			pos += nameLen
		}
		return tag, path, k[pos:], true
	default:
		return 0, nil, nil, false
	}
}

// hasPathPrefix reports whether path begins with every component of prefix,
// in order.
func hasPathPrefix(path, prefix Path) bool {
	if len(path) < len(prefix) {
		return false
	}
	for i := range prefix {
		if path[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Put stores value for userKey inside bucket p.
func Put(m *omap.Map, p Path, userKey, value []byte) error {
	if !Exists(m, p) {
		return terr.New(terr.KindBucketNotFound, joinPath(p))
	}
	m.Put(dataKey(p, userKey), value)
	return nil
}

// Get retrieves the value for userKey inside bucket p.
func Get(m *omap.Map, p Path, userKey []byte) ([]byte, error) {
	if !Exists(m, p) {
		return nil, terr.New(terr.KindBucketNotFound, joinPath(p))
	}
	v, ok := m.Get(dataKey(p, userKey))
	if !ok {
		return nil, terr.ErrKeyNotFound
	}
	return v, nil
}

// DeleteKey removes userKey from bucket p, reporting whether it was present.
func DeleteKey(m *omap.Map, p Path, userKey []byte) (bool, error) {
	if !Exists(m, p) {
		return false, terr.New(terr.KindBucketNotFound, joinPath(p))
	}
	return m.Delete(dataKey(p, userKey)), nil
}

// Ascend visits every user key/value pair in bucket p in ascending order,
// with the tag/path prefix stripped from each key.
func Ascend(m *omap.Map, p Path, fn func(userKey, value []byte) bool) error {
	if !Exists(m, p) {
		return terr.New(terr.KindBucketNotFound, joinPath(p))
	}
	prefix := dataPrefix(p)
	m.AscendRange(prefix, prefixUpperBound(prefix), func(k, v []byte) bool {
		return fn(k[len(prefix):], v)
	})
	return nil
}

// AscendRange visits user key/value pairs in bucket p with userKey in
// [lo, hi), ascending. A nil hi means unbounded.
func AscendRange(m *omap.Map, p Path, lo, hi []byte, fn func(userKey, value []byte) bool) error {
	if !Exists(m, p) {
		return terr.New(terr.KindBucketNotFound, joinPath(p))
	}
	prefix := dataPrefix(p)
	start := append(append([]byte(nil), prefix...), lo...)
	var end []byte
	if hi != nil {
		end = append(append([]byte(nil), prefix...), hi...)
	} else {
		end = prefixUpperBound(prefix)
	}
	m.AscendRange(start, end, func(k, v []byte) bool {
		return fn(k[len(prefix):], v)
	})
	return nil
}

// List returns the names of every top-level bucket stored in m.
func List(m *omap.Map) []string {
	var names []string
	m.AscendRange([]byte{metaTag}, []byte{metaTag + 1}, func(k, _ []byte) bool {
		if len(k) >= 2 {
			nameLen := int(k[1])
			if len(k) >= 2+nameLen {
				names = append(names, string(k[2:2+nameLen]))
			}
		}
		return true
	})
	return names
}

// prefixUpperBound returns the smallest key that is strictly greater than
// every key beginning with prefix, by incrementing its last byte (carrying
// as needed). A nil result means prefix has no finite upper bound (all
// 0xFF bytes), in which case the caller should treat the range as
// unbounded above.
func prefixUpperBound(prefix []byte) []byte {
	bound := append([]byte(nil), prefix...)
	for i := len(bound) - 1; i >= 0; i-- {
		if bound[i] != 0xFF {
			bound[i]++
			return bound[:i+1]
		}
	}
	return nil
}

func joinPath(p Path) string {
	out := ""
	for i, name := range p {
		if i > 0 {
			out += "/"
		}
		out += name
	}
	return out
}
