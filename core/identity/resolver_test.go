package identity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestResolver_Parse(t *testing.T) {
	res := NewResolver(1, 1000)
	oid, _ := primitive.ObjectIDFromHex("507f1f77bcf86cd799439011")

	tests := []struct {
		name   string
		raw    interface{}
		want   CourseRef
		wantOk bool
	}{
		{name: "hex string", raw: "507f1f77bcf86cd799439011", want: Persisted(oid), wantOk: true},
		{name: "hex string with spaces", raw: "  507f1f77bcf86cd799439011 ", want: Persisted(oid), wantOk: true},
		{name: "object id", raw: oid, want: Persisted(oid), wantOk: true},
		{name: "numeric string", raw: "101", want: Catalog(101), wantOk: true},
		{name: "int", raw: 7, want: Catalog(7), wantOk: true},
		{name: "int64", raw: int64(1000), want: Catalog(1000), wantOk: true},
		{name: "integral float", raw: float64(42), want: Catalog(42), wantOk: true},
		{name: "json number", raw: json.Number("12"), want: Catalog(12), wantOk: true},
		{name: "integral json number", raw: json.Number("101.0"), want: Catalog(101), wantOk: true},
		{name: "exponent json number", raw: json.Number("1e2"), want: Catalog(100), wantOk: true},
		{name: "fractional json number", raw: json.Number("101.5")},
		{name: "json number out of range", raw: json.Number("1001.0")},
		{name: "ref", raw: Catalog(3), want: Catalog(3), wantOk: true},
		{name: "fractional float", raw: 4.5},
		{name: "zero", raw: 0},
		{name: "negative", raw: "-5"},
		{name: "above range", raw: 1001},
		{name: "short hex", raw: "507f1f77bcf86cd79943"},
		{name: "garbage", raw: "lol"},
		{name: "empty", raw: ""},
		{name: "nil", raw: nil},
		{name: "bool", raw: true},
		{name: "ref out of range", raw: Catalog(5000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := res.Parse(tt.raw)
			assert.Equal(t, tt.wantOk, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCourseRef_Encoding(t *testing.T) {
	oid := primitive.NewObjectID()

	data, err := json.Marshal(struct {
		A CourseRef `json:"a"`
		B CourseRef `json:"b"`
		C CourseRef `json:"c"`
	}{A: Persisted(oid), B: Catalog(101)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": "`+oid.Hex()+`", "b": 101, "c": null}`, string(data))

	var got struct {
		A CourseRef `json:"a"`
		B CourseRef `json:"b"`
		C CourseRef `json:"c"`
		D CourseRef `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": "`+oid.Hex()+`", "b": 101, "c": "lol", "d": "55"}`), &got))
	assert.Equal(t, Persisted(oid), got.A)
	assert.Equal(t, Catalog(101), got.B)
	assert.True(t, got.C.IsZero())
	assert.Equal(t, Catalog(55), got.D)

	t.Run("integral floats", func(t *testing.T) {
		var got struct {
			A CourseRef `json:"a"`
			B CourseRef `json:"b"`
		}
		require.NoError(t, json.Unmarshal([]byte(`{"a": 101.0, "b": 101.5}`), &got))
		assert.Equal(t, Catalog(101), got.A)
		assert.True(t, got.B.IsZero())
	})
}

func TestCourseRef_IdentitySpacesDoNotCollide(t *testing.T) {
	oid, _ := primitive.ObjectIDFromHex("000000000000000000000065") // 0x65 == 101
	persisted := Persisted(oid)
	catalog := Catalog(101)

	assert.False(t, persisted.Equal(catalog))
	assert.NotEqual(t, persisted.String(), catalog.String())
	assert.Equal(t, []interface{}{oid, oid.Hex()}, persisted.Candidates())
	assert.Equal(t, []interface{}{101, "101"}, catalog.Candidates())
}

func TestFromStored(t *testing.T) {
	oid := primitive.NewObjectID()

	assert.Equal(t, Persisted(oid), FromStored(oid))
	assert.Equal(t, Persisted(oid), FromStored(oid.Hex()))
	assert.Equal(t, Catalog(9), FromStored(int32(9)))
	assert.Equal(t, Catalog(9), FromStored(int64(9)))
	assert.Equal(t, Catalog(9), FromStored("9"))
	assert.True(t, FromStored(nil).IsZero())
	assert.True(t, FromStored("nope").IsZero())
}
