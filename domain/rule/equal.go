package rule

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var equalOpts = []cmp.Option{cmpopts.EquateEmpty()}

// Equal reports whether two field values are structurally equal. Empty and
// nil slices or maps of the same type compare equal.
func Equal(a, b any) bool {
	return cmp.Equal(a, b, equalOpts...)
}
