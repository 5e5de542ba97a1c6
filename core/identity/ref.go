// Package identity resolves course references.
//
// A course is referenced either by the identifier storage generated for it
// (a persisted course) or by a small integer the client knows from its catalog
// (a catalog course, which may or may not have a stored record).
package identity

import (
	"bytes"
	"encoding/json"
	"strconv"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Kind uint8

const (
	KindUnknown Kind = iota
	KindPersisted
	KindCatalog
)

func (k Kind) String() string {
	switch k {
	case KindPersisted:
		return "persisted"
	case KindCatalog:
		return "catalog"
	default:
		return "unknown"
	}
}

// CourseRef holds exactly one of a persisted identifier or a catalog number.
// The zero value is the unknown reference.
type CourseRef struct {
	kind   Kind
	id     primitive.ObjectID
	number int
}

func Persisted(id primitive.ObjectID) CourseRef {
	if id.IsZero() {
		return CourseRef{}
	}
	return CourseRef{kind: KindPersisted, id: id}
}

func Catalog(n int) CourseRef {
	if n <= 0 {
		return CourseRef{}
	}
	return CourseRef{kind: KindCatalog, number: n}
}

func (r CourseRef) Kind() Kind { return r.kind }
func (r CourseRef) IsZero() bool { return r.kind == KindUnknown }
func (r CourseRef) IsPersisted() bool { return r.kind == KindPersisted }
func (r CourseRef) IsCatalog() bool { return r.kind == KindCatalog }
func (r CourseRef) Equal(other CourseRef) bool { return r == other }
func (r CourseRef) ObjectID() (primitive.ObjectID, bool) { return r.id, r.kind == KindPersisted }
func (r CourseRef) Number() (int, bool) { return r.number, r.kind == KindCatalog }

func (r CourseRef) String() string {
	switch r.kind {
	case KindPersisted:
		return r.id.Hex()
	case KindCatalog:
		return strconv.Itoa(r.number)
	default:
		return ""
	}
}

// Native returns the value the reference is stored as: an ObjectID, an int or nil.
func (r CourseRef) Native() interface{} {
	switch r.kind {
	case KindPersisted:
		return r.id
	case KindCatalog:
		return r.number
	default:
		return nil
	}
}

// Candidates lists every value a loosely typed stored field may hold for this reference:
// the native value and its string serialization.
func (r CourseRef) Candidates() []interface{} {
	if r.IsZero() {
		return nil
	}
	return []interface{}{r.Native(), r.String()}
}

func (r CourseRef) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case KindPersisted:
		return json.Marshal(r.id.Hex())
	case KindCatalog:
		return json.Marshal(r.number)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON never fails on an unrecognized value; it leaves the reference unknown.
func (r *CourseRef) UnmarshalJSON(data []byte) error {
	*r = CourseRef{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var raw interface{}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		raw = s
	} else {
		raw = json.Number(data)
	}
	ref, _ := Default.Parse(raw)
	*r = ref
	return nil
}

// FromStored rebuilds a reference from a value read back from storage.
// Legacy records may hold the identifier as a string, so strings are accepted too.
func FromStored(v interface{}) CourseRef {
	switch val := v.(type) {
	case primitive.ObjectID:
		return Persisted(val)
	case int32:
		return Catalog(int(val))
	case int64:
		return Catalog(int(val))
	case int:
		return Catalog(val)
	case string:
		if id, err := primitive.ObjectIDFromHex(val); err == nil {
			return Persisted(id)
		}
		if n, err := strconv.Atoi(val); err == nil {
			return Catalog(n)
		}
	}
	return CourseRef{}
}
