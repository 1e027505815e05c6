package registry

import (
	"fmt"
	"strings"
)

// Require checks that every given name is registered. All missing names are
// reported together.
func (r *Registry[T]) Require(names ...string) error {
	var errs []string
	for _, name := range names {
		if _, err := r.Lookup(name); err != nil {
			errs = append(errs, fmt.Sprintf("%s '%s' is not registered", r.kind, name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}
