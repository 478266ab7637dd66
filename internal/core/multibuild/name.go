// Package multibuild parses and formats composite package identifiers of the
// form "base:flavor".
//
// A ':' may also appear inside a base name, so a split point is only accepted
// when the backend confirms the flavor for that base. Without confirmation the
// whole string is the base name.
package multibuild

import (
	"slices"
	"strings"

	"github.com/foundry/artifactview/internal/core/models"
)

// Separator joins base name and flavor.
const Separator = ":"

// FlavorLookup returns the flavors the backend reports for base.
type FlavorLookup func(base string) ([]string, error)

// Parse splits name into a PackageRef for project. Candidate split points are
// tried from the rightmost separator leftwards; the first one whose flavor is
// reported for its base wins. A nil lookup never yields a flavor.
func Parse(project, name string, lookup FlavorLookup) (models.PackageRef, error) {
	ref := models.PackageRef{Project: project, BaseName: name}
	if lookup == nil {
		return ref, nil
	}
	for i := strings.LastIndex(name, Separator); i > 0; i = strings.LastIndex(name[:i], Separator) {
		base, flavor := name[:i], name[i+len(Separator):]
		if flavor == "" {
			continue
		}
		flavors, err := lookup(base)
		if err != nil {
			return models.PackageRef{}, err
		}
		if slices.Contains(flavors, flavor) {
			ref.BaseName = base
			ref.Flavor = flavor
			return ref, nil
		}
	}
	return ref, nil
}

// Format returns the composite identifier for ref.
func Format(ref models.PackageRef) string {
	return ref.Name()
}

// Static returns a lookup backed by a fixed base → flavors table.
func Static(flavors map[string][]string) FlavorLookup {
	return func(base string) ([]string, error) {
		return flavors[base], nil
	}
}
