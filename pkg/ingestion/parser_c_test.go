package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/codequal/pkg/storage"
)

func parseC(t *testing.T, source string) *ParseResult {
	t.Helper()
	result, err := NewCParser().Parse([]byte(source), "test.c")
	require.NoError(t, err, "Parser should not error on valid C code")
	return result
}

func TestCParser_Functions(t *testing.T) {
	result := parseC(t, `
#include <stdio.h>

/**
 * Computes the sum of two integers.
 */
int add(int a, int b) {
    return a + b;
}

static char *greeting(void) {
    return "hello";
}
`)

	add := findSymbol(result.Symbols, "add")
	require.NotNil(t, add, "Should find add function")
	assert.Equal(t, storage.KindFunction, add.Kind)
	assert.Equal(t, "int add(int a, int b)", add.Signature)
	assert.Equal(t, "Computes the sum of two integers.", add.Docstring)

	greet := findSymbol(result.Symbols, "greeting")
	require.NotNil(t, greet, "Pointer return declarators still resolve to a name")
	assert.Equal(t, "static char *greeting(void)", greet.Signature)
	assert.Empty(t, greet.Docstring)
}

func TestCParser_StructsAndTypedefs(t *testing.T) {
	result := parseC(t, `
struct point {
    int x;
    int y;
};

typedef struct {
    int fd;
} conn_t;

enum color { RED, GREEN };
`)

	pt := findSymbol(result.Symbols, "point")
	require.NotNil(t, pt)
	assert.Equal(t, storage.KindClass, pt.Kind)

	conn := findSymbol(result.Symbols, "conn_t")
	require.NotNil(t, conn, "Typedef name is the symbol for anonymous structs")
	assert.Equal(t, storage.KindClass, conn.Kind)

	col := findSymbol(result.Symbols, "color")
	require.NotNil(t, col)
	assert.Equal(t, storage.KindClass, col.Kind)
}

func TestCParser_Includes(t *testing.T) {
	result := parseC(t, "#include <stdlib.h>\n#include \"util.h\"\n")

	modules := map[string]bool{}
	for _, imp := range result.Imports {
		modules[imp.Module] = true
	}
	assert.True(t, modules["stdlib.h"])
	assert.True(t, modules["util.h"], "Quoted includes are trimmed the same way")
}

func TestCParser_CallSites(t *testing.T) {
	result := parseC(t, `
int process(int n) {
    if (n > 0) {
        return helper(n);
    }
    return fallback();
}
`)

	callees := map[string]string{}
	for _, c := range result.Calls {
		callees[c.CalleeName] = c.CallerName
	}
	assert.Equal(t, "process", callees["helper"])
	assert.Equal(t, "process", callees["fallback"])
	_, hasIf := callees["if"]
	assert.False(t, hasIf, "Control keywords are not calls")
}
