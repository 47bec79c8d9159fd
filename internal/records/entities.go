// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package records

import (
	"strings"

	"github.com/pdiddy/entity-eval/pkg/types"
)

// EntityType names a comma-delimited entity column present in both record
// families.
type EntityType string

const (
	EntityLandmarks     EntityType = "entities_landmarks"
	EntityAddresses     EntityType = "entities_addresses"
	EntityLocationTypes EntityType = "entities_location_types"
	EntityPeopleNames   EntityType = "entities_people_names"
	EntityPeopleDesc    EntityType = "entities_people_desc"
	EntityPeopleRelat   EntityType = "entities_people_relat"
	EntityPatternTypes  EntityType = "entities_pattern_types"
)

// EntityTypes lists every entity column.
var EntityTypes = []EntityType{
	EntityLandmarks,
	EntityAddresses,
	EntityLocationTypes,
	EntityPeopleNames,
	EntityPeopleDesc,
	EntityPeopleRelat,
	EntityPatternTypes,
}

// categoryEntities maps each category to the entity columns whose union
// forms its ground truth.
var categoryEntities = map[types.Category][]EntityType{
	types.CategoryPeople:        {EntityPeopleNames, EntityPeopleDesc, EntityPeopleRelat},
	types.CategoryLocations:     {EntityLandmarks, EntityAddresses},
	types.CategoryLocationTypes: {EntityLocationTypes},
	types.CategoryPatterns:      {EntityPatternTypes},
}

// EntityContext holds the unique values of every entity column for one
// case, across both record families. It is built once per case and passed
// to each stage that needs it.
type EntityContext struct {
	CaseID string
	values map[EntityType]types.EntitySet

	// fullName is "forenames surname" of the first narrative record.
	fullName string
}

// NewEntityContext collects the entity columns of c.
func NewEntityContext(c *types.Case) *EntityContext {
	ec := &EntityContext{
		CaseID: c.ID,
		values: make(map[EntityType]types.EntitySet, len(EntityTypes)),
	}
	for _, et := range EntityTypes {
		set := types.EntitySet{}
		for _, r := range c.MissingPerson {
			addValues(set, r.Get(string(et)))
		}
		for _, r := range c.Vulnerability {
			addValues(set, r.Get(string(et)))
		}
		ec.values[et] = set
	}

	if len(c.MissingPerson) > 0 {
		first := c.MissingPerson[0]
		ec.fullName = strings.TrimSpace(first.Get(colForenames) + " " + first.Get(colSurname))
	}
	return ec
}

// addValues splits a comma-delimited cell, trims and lowercases every
// value, and drops empty and "nan" values.
func addValues(set types.EntitySet, cell string) {
	for _, v := range strings.Split(cell, ",") {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || v == "nan" {
			continue
		}
		set.Add(v)
	}
}

// Values returns the unique raw values of one entity column.
func (ec *EntityContext) Values(et EntityType) types.EntitySet {
	return ec.values[et]
}

// GroundTruth returns the canonical ground-truth set of category cat. The
// people category also includes the missing person's full name.
func (ec *EntityContext) GroundTruth(cat types.Category, canonical func(string) string) types.EntitySet {
	out := types.EntitySet{}
	for _, et := range categoryEntities[cat] {
		for v := range ec.values[et] {
			out.Add(canonical(v))
		}
	}
	if cat == types.CategoryPeople && ec.fullName != "" {
		out.Add(canonical(ec.fullName))
	}
	return out
}
