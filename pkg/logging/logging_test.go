package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, LevelDebug, ParseLevel(" debug "))
	assert.Equal(t, LevelInfo, ParseLevel("INFO"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}

func TestPairProperties(t *testing.T) {
	assert.Nil(t, pairProperties(nil))

	props := pairProperties([]interface{}{"package", "com.example.app", "seq", 3})
	assert.Equal(t, map[string]interface{}{"package": "com.example.app", "seq": 3}, props)

	// A dangling key is kept instead of dropped.
	props = pairProperties([]interface{}{"package"})
	assert.Equal(t, map[string]interface{}{"package": ""}, props)
}
