package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanDuplicateKeys_NoDuplicates(t *testing.T) {
	offenses := scanDuplicateKeys([]byte(`{"a": 1, "b": {"c": 2, "d": 3}}`))
	assert.Empty(t, offenses)
}

func TestScanDuplicateKeys_TopLevelDuplicate(t *testing.T) {
	offenses := scanDuplicateKeys([]byte(`{"a": 1, "a": 2}`))
	assert.Len(t, offenses, 1)
	assert.Equal(t, "a", offenses[0].Key)
}

func TestScanDuplicateKeys_NestedDuplicateDoesNotShadowSibling(t *testing.T) {
	offenses := scanDuplicateKeys([]byte(`{"a": {"x": 1, "x": 2}, "x": 3}`))
	assert.Len(t, offenses, 1)
	assert.Equal(t, "x", offenses[0].Key)
}

func TestScanDuplicateKeys_DuplicateAcrossArrayElementsIsFine(t *testing.T) {
	offenses := scanDuplicateKeys([]byte(`{"items": [{"x": 1}, {"x": 2}]}`))
	assert.Empty(t, offenses)
}

func TestScanDuplicateKeys_ReportsLineNumber(t *testing.T) {
	offenses := scanDuplicateKeys([]byte("{\n  \"a\": 1,\n  \"a\": 2\n}"))
	assert.Len(t, offenses, 1)
	assert.Equal(t, 3, offenses[0].Line)
}
