package wsfuzz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseIndicators(t *testing.T) {
	assert.Equal(t, IndicatorSet{"error", "stacktrace", "trace"}, ParseIndicators("error,stacktrace,trace"))
	assert.Equal(t, IndicatorSet{"error", "sql syntax"}, ParseIndicators(" Error , ,ERROR,SQL Syntax,"))
	assert.Empty(t, ParseIndicators(""))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		indicators IndicatorSet
		response   []byte
		want       []string
	}{
		{"case insensitive", NewIndicatorSet("error"), []byte("Internal Error occurred"), []string{"error"}},
		{"no match", NewIndicatorSet("error"), []byte("ok"), nil},
		{"multiple matches", NewIndicatorSet(DefaultIndicators...), []byte("java.lang.Exception StackTrace: error"), []string{"error", "stacktrace", "trace"}},
		{"empty response", NewIndicatorSet("error"), nil, nil},
		{"empty set", nil, []byte("error"), nil},
		{"binary lossy decode", NewIndicatorSet("error"), []byte{0xff, 0xfe, 'E', 'R', 'R', 'O', 'R', 0x00}, []string{"error"}},
		{"unicode folding", NewIndicatorSet("FEHLER"), []byte("Ein Fehler ist aufgetreten"), []string{"fehler"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.indicators.Classify(tt.response))
		})
	}
}
