package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSensitive(t *testing.T) {
	assert.Equal(t, "eyJh...", MaskSensitive("eyJhbGciOiJIUzI1NiJ9"))
	assert.Equal(t, "***", MaskSensitive("abcd"))
	assert.Equal(t, "***", MaskSensitive(""))
}

func TestMaskStudentID(t *testing.T) {
	assert.Equal(t, "201***45", MaskStudentID("2012345"))
	assert.Equal(t, "***", MaskStudentID("12345"))
	assert.Equal(t, "***", MaskStudentID(""))
}

func TestMaskCookie(t *testing.T) {
	masked := MaskCookie("JSESSIONID=AB12CD; route=node1")
	assert.Equal(t, "JSESSIONID=***; route=***", masked)
	assert.NotContains(t, masked, "AB12CD")

	assert.Equal(t, "(empty)", MaskCookie(""))
}

func TestMaskURL(t *testing.T) {
	u := MaskURL("https://portal.test/lich-thi?masv=2012345&jsessionid=AB12CD&namhoc=2026")
	assert.NotContains(t, u, "2012345")
	assert.NotContains(t, u, "AB12CD")
	assert.Contains(t, u, "masv=***")
	assert.Contains(t, u, "namhoc=2026")

	u = MaskURL("https://portal.test/app?SESSION=secret123")
	assert.NotContains(t, u, "secret123")

	assert.Empty(t, MaskURL(""))
}
