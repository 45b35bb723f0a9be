// Package dashboard lists the rendering documents the sync engine feeds.
package dashboard

import (
	"fmt"
	"path"
	"strings"

	"github.com/dm/dashsync/internal/model"
)

// Category groups dashboards in the launcher.
type Category string

const (
	CategoryInventory  Category = "Inventory"
	CategoryDemand     Category = "Product Demand Dashboards"
	CategoryOperations Category = "Schedule & DF"
	CategoryAI         Category = "AI Tools + ChatBot Links"
	CategoryControl    Category = "CHASCOmobile"
)

// Categories returns every category in display order.
func Categories() []Category {
	return []Category{CategoryInventory, CategoryDemand, CategoryOperations, CategoryAI, CategoryControl}
}

// Dashboard is one embedded document.
type Dashboard struct {
	Name        string
	Description string
	Icon        string
	Document    string
	Category    Category
	// UpdatedInVersion is the app version whose release changed this
	// dashboard, or "" if none.
	UpdatedInVersion string
	// Uses lists the collections the document reads.
	Uses []model.Collection
}

// SurfaceID is the document name without extension, lowercased.
func (d Dashboard) SurfaceID() string {
	base := strings.TrimSuffix(d.Document, path.Ext(d.Document))
	return strings.ToLower(base)
}

// ShowRecentlyUpdated reports whether the "recently updated" badge applies
// for the running version.
func (d Dashboard) ShowRecentlyUpdated(version string) bool {
	return d.UpdatedInVersion != "" && d.UpdatedInVersion == version
}

// NeedsData reports whether the document consumes synced collections.
func (d Dashboard) NeedsData() bool { return len(d.Uses) > 0 }

var all = []Dashboard{
	{
		Name: "Chameleon Inventory", Description: "Chameleon Inventory for BW & Pit",
		Icon: "🦎", Document: "chameleon.html", Category: CategoryInventory,
		Uses: []model.Collection{model.CollectionChameleonInventory},
	},
	{
		Name: "Admix Inventory", Description: "Admixture (Dry Goods) Inventory for BW & Pit",
		Icon: "cemexlogo.png", Document: "Admix.html", Category: CategoryInventory,
		Uses: []model.Collection{model.CollectionAdmixInventory},
	},
	{
		Name: "Inventory Submission", Description: "Update Inventories For BW & Pit + RAP area",
		Icon: "deister.png", Document: "InventorySubmission.html", Category: CategoryInventory,
	},
	{
		Name: "All Raw Material Demands", Description: "Combined Raw Material Demands",
		Icon: "rawmatlogo.png", Document: "RawWeeklyComb.html", Category: CategoryDemand,
		UpdatedInVersion: "1.50",
		Uses:             []model.Collection{model.CollectionRawMaterialDemands},
	},
	{
		Name: "Concrete Demand", Description: "Weekly Concrete Demand",
		Icon: "coneco.png", Document: "ConcWeekly.html", Category: CategoryDemand,
		UpdatedInVersion: "1.50",
		Uses:             []model.Collection{model.CollectionConcreteDemand},
	},
	{
		Name: "Asphalt Demand", Description: "Weekly Asphalt Demand",
		Icon: "astelogo.png", Document: "AsphaltWeekly.html", Category: CategoryDemand,
		UpdatedInVersion: "1.50",
		Uses:             []model.Collection{model.CollectionAsphaltDemand},
	},
	{
		Name: "AC Oil Demand", Description: "Weekly AC OIL Demand",
		Icon: "acoillogo.png", Document: "ACoilWeekly.html", Category: CategoryDemand,
		UpdatedInVersion: "1.50",
		Uses:             []model.Collection{model.CollectionAsphaltDemand},
	},
	{
		Name: "Powder Demand", Description: "Weekly Cement/Slag/Flyash Demand",
		Icon: "cementlogo.png", Document: "PowderWeekly.html", Category: CategoryDemand,
		UpdatedInVersion: "1.50",
		Uses:             []model.Collection{model.CollectionPowderDemand},
	},
	{
		Name: "Driver Schedule", Description: "Driver Start Times & Schedule",
		Icon: "dflogo.png", Document: "ScheduleDash.html", Category: CategoryOperations,
		UpdatedInVersion: "1.42",
		Uses:             []model.Collection{model.CollectionDriverSchedule},
	},
	{
		Name: "Concrete Quote AI", Description: "AI-powered Concrete Quick-Quote",
		Icon: "zapierchat.png", Document: "ConcQuoteBot.html", Category: CategoryAI,
	},
	{
		Name: "Mix Design Assist", Description: "AI Mix Design Selector",
		Icon: "mixlogodesign.png", Document: "MixDesignAI.html", Category: CategoryAI,
	},
	{
		Name: "CHASCOmobile", Description: "Plant Control Interface for CHASCO",
		Icon: "chascologo.png", Document: "index.html", Category: CategoryControl,
	},
}

// All returns every dashboard in launcher order.
func All() []Dashboard {
	out := make([]Dashboard, len(all))
	copy(out, all)
	return out
}

// ByCategory returns the dashboards of one category in launcher order.
func ByCategory(c Category) []Dashboard {
	var out []Dashboard
	for _, d := range all {
		if d.Category == c {
			out = append(out, d)
		}
	}
	return out
}

// Find looks a dashboard up by display name or surface id, case-insensitively.
func Find(name string) (Dashboard, error) {
	for _, d := range all {
		if strings.EqualFold(d.Name, name) || strings.EqualFold(d.SurfaceID(), name) {
			return d, nil
		}
	}
	return Dashboard{}, fmt.Errorf("unknown dashboard %q", name)
}

// DataDashboards returns the dashboards that consume synced collections.
func DataDashboards() []Dashboard {
	var out []Dashboard
	for _, d := range all {
		if d.NeedsData() {
			out = append(out, d)
		}
	}
	return out
}
