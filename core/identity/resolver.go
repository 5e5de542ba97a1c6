package identity

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Default classifies references by shape only; any positive integer is a catalog number.
// Services narrow it down with their configured Resolver.
var Default = Resolver{Min: 1, Max: math.MaxInt32}

// Resolver classifies raw course references.
// Catalog numbers are accepted within [Min, Max].
type Resolver struct {
	Min int
	Max int
}

func NewResolver(min, max int) Resolver {
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	return Resolver{Min: min, Max: max}
}

// Parse classifies raw as a persisted identifier or a catalog number.
// ok is false, with no error, when raw matches neither.
func (res Resolver) Parse(raw interface{}) (CourseRef, bool) {
	switch val := raw.(type) {
	case CourseRef:
		return res.Normalize(val)
	case primitive.ObjectID:
		return res.Normalize(Persisted(val))
	case string:
		return res.parseString(val)
	case json.Number:
		if _, err := val.Int64(); err != nil {
			f, err := val.Float64()
			if err != nil {
				return CourseRef{}, false
			}
			return res.Parse(f)
		}
		return res.parseString(val.String())
	case int:
		return res.catalog(int64(val))
	case int32:
		return res.catalog(int64(val))
	case int64:
		return res.catalog(val)
	case float64:
		if val != math.Trunc(val) || val > math.MaxInt32 || val < math.MinInt32 {
			return CourseRef{}, false
		}
		return res.catalog(int64(val))
	}
	return CourseRef{}, false
}

// Normalize checks an already classified reference against the resolver's bounds.
func (res Resolver) Normalize(ref CourseRef) (CourseRef, bool) {
	switch ref.kind {
	case KindPersisted:
		return ref, true
	case KindCatalog:
		return res.catalog(int64(ref.number))
	}
	return CourseRef{}, false
}

func (res Resolver) parseString(s string) (CourseRef, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CourseRef{}, false
	}
	if primitive.IsValidObjectID(s) {
		id, _ := primitive.ObjectIDFromHex(s)
		return Persisted(id), true
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return CourseRef{}, false
	}
	return res.catalog(n)
}

func (res Resolver) catalog(n int64) (CourseRef, bool) {
	if n < int64(res.Min) || n > int64(res.Max) {
		return CourseRef{}, false
	}
	return Catalog(int(n)), true
}
