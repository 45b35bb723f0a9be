package dashboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dm/dashsync/internal/model"
)

func TestByCategory(t *testing.T) {
	total := 0
	for _, c := range Categories() {
		ds := ByCategory(c)
		assert.NotEmpty(t, ds, "category %q is empty", c)
		total += len(ds)
	}
	assert.Equal(t, len(All()), total, "every dashboard belongs to a listed category")
	assert.Len(t, ByCategory(CategoryDemand), 5)
}

func TestSurfaceIDsUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, d := range All() {
		id := d.SurfaceID()
		assert.False(t, seen[id], "duplicate surface id %q", id)
		seen[id] = true
	}
	d, err := Find("Concrete Demand")
	require.NoError(t, err)
	assert.Equal(t, "concweekly", d.SurfaceID())
}

func TestFind(t *testing.T) {
	d, err := Find("driver schedule")
	require.NoError(t, err)
	assert.Equal(t, "ScheduleDash.html", d.Document)

	d, err = Find("scheduledash")
	require.NoError(t, err)
	assert.Equal(t, "Driver Schedule", d.Name)

	_, err = Find("nope")
	assert.Error(t, err)
}

func TestShowRecentlyUpdated(t *testing.T) {
	d, _ := Find("Powder Demand")
	assert.True(t, d.ShowRecentlyUpdated("1.50"))
	assert.False(t, d.ShowRecentlyUpdated("1.51"))

	c, _ := Find("Chameleon Inventory")
	assert.False(t, c.ShowRecentlyUpdated(""))
}

func TestDataDashboards(t *testing.T) {
	for _, d := range DataDashboards() {
		for _, c := range d.Uses {
			assert.True(t, c.Valid(), "%s uses unknown collection %q", d.Name, c)
		}
	}
	q, _ := Find("Concrete Quote AI")
	assert.False(t, q.NeedsData())
	assert.Contains(t, DataDashboards()[0].Uses, model.CollectionChameleonInventory)
}

func TestAllReturnsCopy(t *testing.T) {
	a := All()
	a[0].Name = "changed"
	assert.Equal(t, "Chameleon Inventory", All()[0].Name)
}
