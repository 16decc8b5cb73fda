package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	domainconfig "github.com/felixgeelhaar/ruleup/domain/config"
)

// envPattern matches ${VAR}, ${VAR:-default} and ${VAR:?message}. Bare $VAR
// is left alone so that rule queries containing "$" survive expansion.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([-?])([^}]*))?\}`)

// ExpandEnv expands environment references in input. Unset variables without
// a default expand to the empty string, unless strict is set, in which case
// they are reported like ${VAR:?} references.
func ExpandEnv(input string, strict bool) (string, error) {
	var missing []string

	out := envPattern.ReplaceAllStringFunc(input, func(match string) string {
		m := envPattern.FindStringSubmatch(match)
		name, op, arg := m[1], m[2], m[3]

		value, ok := os.LookupEnv(name)
		switch op {
		case "-":
			if !ok || value == "" {
				return arg
			}
		case "?":
			if !ok || value == "" {
				if arg == "" {
					arg = "required"
				}
				missing = append(missing, fmt.Sprintf("%s: %s", name, arg))
				return match
			}
		default:
			if !ok && strict {
				missing = append(missing, name)
			}
		}
		return value
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", domainconfig.ErrMissingEnvVar, strings.Join(missing, ", "))
	}
	return out, nil
}
