package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTerm(t *testing.T) {
	assert.Equal(t, "metformin", NormalizeTerm("  Metformin "))
	assert.Equal(t, "blood pressure", NormalizeTerm("Blood Pressure"))
	assert.Equal(t, "", NormalizeTerm("   "))
}

func TestTermHashIsCaseInsensitive(t *testing.T) {
	a := TermHash("Dyspnea")
	b := TermHash("  dyspnea  ")

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, TermHash("dyspepsia"))
}
