package step

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Validate checks that every step has a positive, unique version and a
// description. All problems are reported together.
func Validate(steps []Step) error {
	var result *multierror.Error
	seen := map[int]int{}
	for i, s := range steps {
		if s == nil {
			result = multierror.Append(result, fmt.Errorf("step #%d is nil", i))
			continue
		}
		v := s.Version()
		if v <= 0 {
			result = multierror.Append(result, fmt.Errorf("step #%d: version must be positive, got %d", i, v))
		}
		if strings.TrimSpace(s.Description()) == "" {
			result = multierror.Append(result, fmt.Errorf("step %d: description is required", v))
		}
		if prev, dup := seen[v]; dup {
			result = multierror.Append(result, fmt.Errorf("step #%d: version %d already used by step #%d", i, v, prev))
			continue
		}
		seen[v] = i
	}
	return result.ErrorOrNil()
}

// Sort orders steps by ascending version in place and returns them.
func Sort(steps []Step) []Step {
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Version() < steps[j].Version() })
	return steps
}
