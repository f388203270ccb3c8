package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewarden/codewarden/internal/domain/findings"
)

func sampleFinding() findings.Finding {
	return findings.New("secrets", "hardcoded-secret", findings.SeverityHigh,
		"internal/db/conn.go", 42, "possible hardcoded credential").
		WithDescription("credential assigned to a package-level variable").
		WithSuggestion("Move the secret to environment or a secret manager")
}

func TestExtractIsDeterministic(t *testing.T) {
	e := NewFeatureExtractor()
	f := sampleFinding()

	a := e.Extract(&f)
	b := e.Extract(&f)

	require.Len(t, a, BasicDim)
	assert.Equal(t, a, b)
}

func TestExtractRanges(t *testing.T) {
	e := NewFeatureExtractor()
	f := sampleFinding()

	v := e.Extract(&f)
	for i, x := range v {
		assert.GreaterOrEqual(t, x, 0.0, "feature %d", i)
		assert.LessOrEqual(t, x, 1.0, "feature %d", i)
	}
	assert.InDelta(t, 0.8, v[0], 1e-9) // high severity
	assert.InDelta(t, 0.8, v[1], 1e-9) // go file
	assert.InDelta(t, 0.95, v[2], 1e-9) // secrets analyzer
	assert.Equal(t, 1.0, v[5]) // has description
	assert.Equal(t, 1.0, v[6]) // has suggestion
}

func TestEnhancedVectorKeepsBasicPrefix(t *testing.T) {
	e := NewEnhancedExtractor()
	f := sampleFinding()
	content := []byte("package db\n\nimport \"os\"\n\nfunc conn() string {\n\tif true {\n\t\treturn os.Getenv(\"DSN\")\n\t}\n\treturn \"\"\n}\n")

	enhanced, err := e.Extract(&f, content)
	require.NoError(t, err)
	require.Len(t, enhanced, EnhancedDim)

	basic := e.Base().Extract(&f)
	assert.Equal(t, basic, enhanced[:BasicDim])
}

func TestEnhancedExtractorFallsBackOnBadContent(t *testing.T) {
	e := NewEnhancedExtractor()
	f := sampleFinding()

	v, err := e.Extract(&f, []byte{0xff, 0xfe, 0x80})
	assert.ErrorIs(t, err, ErrSyntaxUnavailable)
	assert.Len(t, v, BasicDim)

	v, err = e.Extract(&f, nil)
	assert.ErrorIs(t, err, ErrSyntaxUnavailable)
	assert.Len(t, v, BasicDim)
}

func TestSyntaxFeaturesDeterministic(t *testing.T) {
	src := "func main() {\n\tfor i := 0; i < 10; i++ {\n\t\tif i%2 == 0 {\n\t\t\twork(i)\n\t\t}\n\t}\n}\n"
	a := syntaxFeatures(src)
	b := syntaxFeatures(src)

	require.Len(t, a, SyntaxDim)
	assert.Equal(t, a, b)
	for i, x := range a {
		assert.GreaterOrEqual(t, x, 0.0, "feature %d", i)
		assert.LessOrEqual(t, x, 1.0, "feature %d", i)
	}
}

func TestPadToEnhanced(t *testing.T) {
	v := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	padded := PadToEnhanced(v)

	require.Len(t, padded, EnhancedDim)
	assert.Equal(t, v, padded[:BasicDim])
	for _, x := range padded[BasicDim:] {
		assert.Zero(t, x)
	}
}
