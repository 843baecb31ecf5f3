package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordKeepsFieldOrder(t *testing.T) {
	r := NewRecord("test", []string{"id", "value", "created_at"}, []interface{}{1, "a", nil})
	defer r.Release()

	assert.Equal(t, []string{"id", "value", "created_at"}, r.Fields())
	assert.Equal(t, []interface{}{1, "a", nil}, r.Values())
	assert.Equal(t, 3, r.Len())

	r.Set("value", "b")
	assert.Equal(t, []string{"id", "value", "created_at"}, r.Fields(), "overwrite keeps position")

	r.Set("updated_at", "now")
	assert.Equal(t, "updated_at", r.Fields()[3])

	r.Delete("value")
	assert.Equal(t, []string{"id", "created_at", "updated_at"}, r.Fields())
	assert.False(t, r.Has("value"))

	r.Delete("missing")
	assert.Equal(t, 3, r.Len())
}

func TestRecordGetDistinguishesNil(t *testing.T) {
	r := GetRecord()
	defer r.Release()

	r.Set("deleted_at", nil)

	v, ok := r.Get("deleted_at")
	assert.True(t, ok)
	assert.Nil(t, v)

	_, ok = r.Get("other")
	assert.False(t, ok)
}

func TestRecordRangeStopsEarly(t *testing.T) {
	r := NewRecord("test", []string{"a", "b", "c"}, []interface{}{1, 2, 3})
	defer r.Release()

	var seen []string
	r.Range(func(field string, _ interface{}) bool {
		seen = append(seen, field)
		return field != "b"
	})
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestReleasedRecordIsEmpty(t *testing.T) {
	r := NewRecord("test", []string{"a"}, []interface{}{1})
	r.Release()

	fresh := GetRecord()
	defer fresh.Release()
	assert.Equal(t, 0, fresh.Len())
	assert.Empty(t, fresh.ID)
}

func TestBatchSlice(t *testing.T) {
	batch := GetBatchSlice(10)
	assert.Equal(t, 0, len(batch))
	assert.GreaterOrEqual(t, cap(batch), 10)

	big := GetBatchSlice(5000)
	assert.GreaterOrEqual(t, cap(big), 5000)

	PutBatchSlice(batch)
	PutBatchSlice(big)
	PutBatchSlice(nil)
}
