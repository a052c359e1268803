package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectLanguage_Extensions(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"app/main.py", LangPython},
		{"lib/util.c", LangC},
		{"lib/util.h", LangC},
		{"boot/start.s", LangAssembly},
		{"boot/start.asm", LangAssembly},
		{"batch/payroll.cob", LangCobol},
		{"batch/payroll.cbl", LangCobol},
		{"README.md", LangUnknown},
		{"Makefile", LangUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DetectLanguage(tc.path, nil), "path %s", tc.path)
	}
}

func TestDetectLanguage_Shebang(t *testing.T) {
	head := []byte("#!/usr/bin/env python3\nprint('hi')\n")
	assert.Equal(t, LangPython, DetectLanguage("scripts/deploy", head))

	bash := []byte("#!/bin/bash\necho hi\n")
	assert.Equal(t, LangUnknown, DetectLanguage("scripts/run", bash))
}

func TestDetectLanguage_ExtensionWinsOverShebang(t *testing.T) {
	head := []byte("#!/usr/bin/env python3\n")
	assert.Equal(t, LangC, DetectLanguage("weird.c", head))
}

func TestIsBinary(t *testing.T) {
	assert.True(t, IsBinary([]byte{0x7f, 'E', 'L', 'F', 0x00, 0x01}))
	assert.False(t, IsBinary([]byte("def f():\n    return 1\n")))
	assert.False(t, IsBinary(nil))
}
