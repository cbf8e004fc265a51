package cli_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/public-data-space/zenodo-adapter/internal/common/cli"
	"github.com/public-data-space/zenodo-adapter/internal/common/constants"
	"github.com/stretchr/testify/assert"
)

// hacky way to allow us to reset the default logger.
var defaultLogger = *slog.Default()

//nolint:tparallel // Subtests modify the global default logger.
func TestSetVerbosity(t *testing.T) {
	tests := map[string]struct {
		pattern []int
	}{
		"info":            {pattern: []int{1}},
		"none":            {pattern: []int{0}},
		"info none":       {pattern: []int{1, 0}},
		"info debug":      {pattern: []int{1, 2}},
		"info debug none": {pattern: []int{1, 2, 0}},
		"debug":           {pattern: []int{2}},
		"debug and more":  {pattern: []int{5}},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			slog.SetDefault(&defaultLogger)

			for _, p := range tc.pattern {
				cli.SetVerbosity(p)
				assertLevel(t, p)
			}
		})
	}
}

//nolint:tparallel // Subtests modify the global default logger.
func TestSetSlog(t *testing.T) {
	tests := map[string]struct {
		level    int
		jsonLogs bool
	}{
		"text none":  {level: 0},
		"text debug": {level: 2},
		"json none":  {level: 0, jsonLogs: true},
		"json info":  {level: 1, jsonLogs: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			slog.SetDefault(&defaultLogger)
			t.Cleanup(func() { slog.SetDefault(&defaultLogger) })

			cli.SetSlog(tc.level, tc.jsonLogs)
			assertLevel(t, tc.level)

			_, isJSON := slog.Default().Handler().(*slog.JSONHandler)
			assert.Equal(t, tc.jsonLogs, isJSON, "Unexpected handler type")
		})
	}
}

func assertLevel(t *testing.T, verbosity int) {
	t.Helper()

	want := slog.LevelDebug
	switch verbosity {
	case 0:
		want = constants.DefaultLogLevel
	case 1:
		want = slog.LevelInfo
	}

	assert.True(t, slog.Default().Enabled(context.Background(), want), "level %v should be enabled", want)
	assert.False(t, slog.Default().Enabled(context.Background(), want-1), "level below %v should be disabled", want)
}
