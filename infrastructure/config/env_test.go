package config

import (
	"errors"
	"testing"

	domainconfig "github.com/felixgeelhaar/ruleup/domain/config"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("RULEUP_TEST_DSN", "postgres://db/rules")
	t.Setenv("RULEUP_TEST_EMPTY", "")

	tests := []struct {
		name   string
		input  string
		strict bool
		want   string
	}{
		{name: "plain", input: "dsn: ${RULEUP_TEST_DSN}", want: "dsn: postgres://db/rules"},
		{name: "default unused", input: "${RULEUP_TEST_DSN:-fallback}", want: "postgres://db/rules"},
		{name: "default on unset", input: "${RULEUP_TEST_UNSET:-fallback}", want: "fallback"},
		{name: "default on empty", input: "${RULEUP_TEST_EMPTY:-fallback}", want: "fallback"},
		{name: "unset expands empty", input: "a${RULEUP_TEST_UNSET}b", want: "ab"},
		{name: "empty set var in strict mode", input: "a${RULEUP_TEST_EMPTY}b", strict: true, want: "ab"},
		{name: "bare dollar untouched", input: "query: process.name:$RULEUP_TEST_DSN", want: "query: process.name:$RULEUP_TEST_DSN"},
		{name: "multiple", input: "${RULEUP_TEST_DSN} ${RULEUP_TEST_UNSET:-x}", want: "postgres://db/rules x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandEnv(tt.input, tt.strict)
			if err != nil {
				t.Fatalf("ExpandEnv() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ExpandEnv() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExpandEnv_Missing(t *testing.T) {
	t.Setenv("RULEUP_TEST_EMPTY", "")

	tests := []struct {
		name   string
		input  string
		strict bool
	}{
		{name: "required unset", input: "${RULEUP_TEST_UNSET:?dsn is required}"},
		{name: "required empty", input: "${RULEUP_TEST_EMPTY:?}"},
		{name: "strict unset", input: "${RULEUP_TEST_UNSET}", strict: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExpandEnv(tt.input, tt.strict)
			if !errors.Is(err, domainconfig.ErrMissingEnvVar) {
				t.Errorf("ExpandEnv() error = %v, want ErrMissingEnvVar", err)
			}
		})
	}
}
