package content

import (
	"encoding/binary"
	"math"
	"strconv"

	domcontent "github.com/kailas-cloud/rarity/internal/domain/content"
	"github.com/kailas-cloud/rarity/internal/domain/scope"
)

// buildHashFields converts an item into a flat map[string]string for HSET.
// Empty location parts are omitted so TAG filters never match them.
func buildHashFields(it domcontent.Item) map[string]string {
	loc := it.Location()
	m := map[string]string{
		fieldID:                   it.ID(),
		fieldHash:                 it.NormalizedHash(),
		scope.FieldScope:          string(it.Scope()),
		domcontent.FieldType:      string(it.Type()),
		domcontent.FieldNegation:  domcontent.NegationTag(it.HasNegation()),
		domcontent.FieldCreatedAt: strconv.FormatInt(it.CreatedAt().Unix(), 10),
		fieldVector:               vectorToBytes(it.Embedding()),
	}
	for k, v := range map[string]string{
		scope.FieldCity:    loc.City,
		scope.FieldState:   loc.State,
		scope.FieldCountry: loc.Country,
	} {
		if v != "" {
			m[k] = v
		}
	}
	return m
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
