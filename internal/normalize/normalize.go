// Package normalize resolves fields out of loosely-typed live-event payloads.
//
// Live clients disagree on field naming (camelCase, snake_case, flattened
// lowercase) and frequently omit fields altogether. Resolve walks an ordered
// list of candidate names and returns the first one that is present and
// non-nil, falling back to a caller-supplied default.
package normalize

import (
	"reflect"
	"strings"
)

// Attrs is an attribute bag: an object whose fields are read by name.
type Attrs interface {
	Attr(name string) (any, bool)
}

// Payload is either an attribute bag or a plain mapping. The zero value is an
// empty payload from which every lookup misses.
type Payload struct {
	attrs   Attrs
	mapping map[string]any
}

// FromAttrs wraps an attribute bag.
func FromAttrs(a Attrs) Payload {
	return Payload{attrs: a}
}

// FromMap wraps a mapping.
func FromMap(m map[string]any) Payload {
	return Payload{mapping: m}
}

// Of wraps an arbitrary value: mappings and attribute bags as-is, structs
// (or pointers to them) through reflection. Anything else yields an empty
// payload and false.
func Of(v any) (Payload, bool) {
	switch x := v.(type) {
	case nil:
		return Payload{}, false
	case Payload:
		return x, !x.IsZero()
	case map[string]any:
		return FromMap(x), true
	case map[string]string:
		m := make(map[string]any, len(x))
		for k, s := range x {
			m[k] = s
		}
		return FromMap(m), true
	case Attrs:
		return FromAttrs(x), true
	}
	if a, ok := Struct(v); ok {
		return FromAttrs(a), true
	}
	return Payload{}, false
}

// IsZero reports whether p wraps nothing.
func (p Payload) IsZero() bool {
	return p.attrs == nil && p.mapping == nil
}

// Candidate names per field, most specific first.
var (
	UserKeys        = []string{"user"}
	GiftKeys        = []string{"gift"}
	UserIDKeys      = []string{"uniqueId", "unique_id", "userId", "user_id"}
	NicknameKeys    = []string{"nickname", "nickName", "nick"}
	CommentKeys     = []string{"comment", "message", "text"}
	GiftNameKeys    = []string{"name", "giftName", "gift_name"}
	RepeatCountKeys = []string{"repeat_count", "repeatCount", "repeatcount"}
	RootRepeatKeys  = []string{"repeatCount", "repeat_count"}
	LikeCountKeys   = []string{"likeCount", "like_count"}
	TotalLikeKeys   = []string{"totalLikeCount", "total_like_count"}
	ViewerCountKeys = []string{"viewerCount", "viewer_count"}
)

// Resolve returns the value of the first candidate present in p, or def.
// For each candidate the exact name is tried as attribute then as mapping
// key, followed by its lower-cased form and its form with separators
// removed. A failing accessor counts as a miss.
func Resolve(p Payload, names []string, def any) any {
	if p.IsZero() {
		return def
	}
	for _, name := range names {
		for _, variant := range variants(name) {
			if v, ok := p.attr(variant); ok {
				return v
			}
			if v, ok := p.key(variant); ok {
				return v
			}
		}
	}
	return def
}

func variants(name string) []string {
	out := []string{name}
	if lower := strings.ToLower(name); lower != name {
		out = append(out, lower)
	}
	stripped := strings.NewReplacer("_", "", "-", "", " ", "").Replace(name)
	if stripped != name && stripped != out[len(out)-1] {
		out = append(out, stripped)
	}
	return out
}

func (p Payload) attr(name string) (v any, ok bool) {
	if p.attrs == nil {
		return nil, false
	}
	defer func() {
		if recover() != nil {
			v, ok = nil, false
		}
	}()
	v, ok = p.attrs.Attr(name)
	if !ok || isNil(v) {
		return nil, false
	}
	return v, true
}

func (p Payload) key(name string) (any, bool) {
	if p.mapping == nil {
		return nil, false
	}
	v, ok := p.mapping[name]
	if !ok || isNil(v) {
		return nil, false
	}
	return v, true
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
