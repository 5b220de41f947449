package encoder

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitAssignsSortedCodes(t *testing.T) {
	enc := Fit([]string{"snacks", "beverages", "snacks", "dairy"})

	assert.Equal(t, []string{"beverages", "dairy", "snacks"}, enc.Classes())
	assert.Equal(t, 0, enc.Code("beverages"))
	assert.Equal(t, 1, enc.Code("dairy"))
	assert.Equal(t, 2, enc.Code("snacks"))
}

func TestUnseenLabelIsUnknown(t *testing.T) {
	enc := Fit([]string{"a", "b"})

	assert.Equal(t, Unknown, enc.Code("zzz"))
	assert.False(t, enc.Known("zzz"))

	var nilEnc *Encoder
	assert.Equal(t, Unknown, nilEnc.Code("a"))
}

func TestRegistry(t *testing.T) {
	rows := []map[string]string{
		{"store_id": "S2", "brand": "acme"},
		{"store_id": "S1", "brand": "zeta"},
	}
	reg := FitRegistry([]string{"store_id", "brand"}, len(rows), func(i int, col string) string {
		return rows[i][col]
	})

	assert.True(t, reg.Has("brand"))
	assert.False(t, reg.Has("city"))
	assert.Equal(t, []string{"brand", "store_id"}, reg.Columns())
	assert.Equal(t, 0.0, reg.Code("store_id", "S1"))
	assert.Equal(t, 1.0, reg.Code("store_id", "S2"))
	assert.Equal(t, -1.0, reg.Code("store_id", "S9"))
	assert.Equal(t, -1.0, reg.Code("city", "Jakarta"))
}

func TestRegistryJSONRoundTrip(t *testing.T) {
	reg := FitRegistry([]string{"sku_id"}, 3, func(i int, _ string) string {
		return []string{"SKU-3", "SKU-1", "SKU-2"}[i]
	})

	data, err := json.Marshal(reg)
	require.NoError(t, err)

	var restored Registry
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, reg.Encoder("sku_id").Classes(), restored.Encoder("sku_id").Classes())
	assert.Equal(t, 2.0, restored.Code("sku_id", "SKU-3"))
}

func TestUnmarshalRejectsUnsortedClasses(t *testing.T) {
	var enc Encoder
	assert.Error(t, json.Unmarshal([]byte(`["b","a"]`), &enc))
}
