package model

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"
)

// Collection identifies one backend data collection, e.g. the inventory of
// every plant or the weekly concrete demand.
type Collection string

// Known collections, named after their backend tables.
const (
	CollectionChameleonInventory Collection = "chameleon_inventory"
	CollectionAdmixInventory     Collection = "admix_inventory"
	CollectionConcreteDemand     Collection = "concrete_demand"
	CollectionAsphaltDemand      Collection = "asphalt_demand"
	CollectionRawMaterialDemands Collection = "raw_material_demands"
	CollectionPowderDemand       Collection = "powder_demand"
	CollectionDriverSchedule     Collection = "driver_schedule"
)

// recordDecoder builds one record from its decoded JSON fields. fallback is
// used for last_updated when the backend omits it.
type recordDecoder func(f fields, fallback time.Time) (Record, error)

// collectionOrder is the fixed iteration order used for payloads and display.
var collectionOrder = []Collection{
	CollectionChameleonInventory,
	CollectionAdmixInventory,
	CollectionConcreteDemand,
	CollectionAsphaltDemand,
	CollectionRawMaterialDemands,
	CollectionPowderDemand,
	CollectionDriverSchedule,
}

var decoders = map[Collection]recordDecoder{
	CollectionChameleonInventory: decodeChameleonInventory,
	CollectionAdmixInventory:     decodeAdmixInventory,
	CollectionConcreteDemand:     decodeProductDemand,
	CollectionAsphaltDemand:      decodeProductDemand,
	CollectionRawMaterialDemands: decodeRawMaterialDemand,
	CollectionPowderDemand:       decodePowderDemand,
	CollectionDriverSchedule:     decodeDriverSchedule,
}

// recordTypes is the concrete Record type each collection holds.
var recordTypes = map[Collection]reflect.Type{
	CollectionChameleonInventory: reflect.TypeFor[ChameleonInventory](),
	CollectionAdmixInventory:     reflect.TypeFor[AdmixInventory](),
	CollectionConcreteDemand:     reflect.TypeFor[ProductDemand](),
	CollectionAsphaltDemand:      reflect.TypeFor[ProductDemand](),
	CollectionRawMaterialDemands: reflect.TypeFor[RawMaterialDemand](),
	CollectionPowderDemand:       reflect.TypeFor[PowderDemand](),
	CollectionDriverSchedule:     reflect.TypeFor[DriverSchedule](),
}

// Collections returns every known collection in display order.
func Collections() []Collection {
	return slices.Clone(collectionOrder)
}

// Valid reports whether c is one of the known collections.
func (c Collection) Valid() bool {
	_, ok := decoders[c]
	return ok
}

// String implements fmt.Stringer.
func (c Collection) String() string {
	return string(c)
}

// Title returns a human-readable label, e.g. "Raw Material Demands".
func (c Collection) Title() string {
	words := strings.Split(string(c), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// ParseCollection converts a wire name into a Collection.
func ParseCollection(s string) (Collection, error) {
	c := Collection(strings.TrimSpace(s))
	if !c.Valid() {
		return "", fmt.Errorf("unknown collection %q", s)
	}
	return c, nil
}

// ParseCollections converts a list of wire names, rejecting unknown and
// duplicate entries. An empty list yields every known collection.
func ParseCollections(names []string) ([]Collection, error) {
	if len(names) == 0 {
		return Collections(), nil
	}
	out := make([]Collection, 0, len(names))
	seen := make(map[Collection]bool, len(names))
	for _, n := range names {
		c, err := ParseCollection(n)
		if err != nil {
			return nil, err
		}
		if seen[c] {
			return nil, fmt.Errorf("duplicate collection %q", n)
		}
		seen[c] = true
		out = append(out, c)
	}
	return out, nil
}
