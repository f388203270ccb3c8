package findings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStableIDIsReproducible(t *testing.T) {
	a := New("secrets", "hardcoded-secret", SeverityHigh, "internal/db/conn.go", 42, "possible hardcoded credential")
	b := New("secrets", "hardcoded-secret", SeverityHigh, "internal/db/conn.go", 42, "possible hardcoded credential")

	assert.Equal(t, a.ID, b.ID)
	assert.Len(t, a.ID, 32)
}

func TestStableIDChangesWithLocation(t *testing.T) {
	a := New("secrets", "hardcoded-secret", SeverityHigh, "a.go", 1, "msg")
	b := New("secrets", "hardcoded-secret", SeverityHigh, "a.go", 2, "msg")
	c := New("secrets", "hardcoded-secret", SeverityHigh, "b.go", 1, "msg")

	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.ID, c.ID)
}

func TestSortIsDeterministic(t *testing.T) {
	fs := []Finding{
		New("quality", "todo-marker", SeverityInfo, "z.go", 3, "m"),
		New("secrets", "hardcoded-secret", SeverityCritical, "a.go", 10, "m"),
		New("quality", "todo-marker", SeverityInfo, "a.go", 1, "m"),
		New("crypto", "weak-hash", SeverityMedium, "a.go", 5, "m"),
	}
	Sort(fs)

	assert.Equal(t, SeverityCritical, fs[0].Severity)
	assert.Equal(t, SeverityMedium, fs[1].Severity)
	assert.Equal(t, "a.go", fs[2].File)
	assert.Equal(t, "z.go", fs[3].File)
}

func TestCount(t *testing.T) {
	fs := []Finding{
		New("a", "r1", SeverityCritical, "f", 1, "m"),
		New("a", "r2", SeverityHigh, "f", 2, "m"),
		New("a", "r3", SeverityHigh, "f", 3, "m"),
		New("a", "r4", SeverityInfo, "f", 4, "m"),
	}
	c := Count(fs)
	assert.Equal(t, 1, c.Critical)
	assert.Equal(t, 2, c.High)
	assert.Equal(t, 1, c.Info)
	assert.Equal(t, 4, c.Total)
}
