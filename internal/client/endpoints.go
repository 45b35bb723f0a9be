package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/dm/dashsync/internal/model"
)

const restPrefix = "/rest/v1/"

// endpoint is one entry of the fixed collection table.
type endpoint struct {
	table string
	query Query
}

var endpoints = map[model.Collection]endpoint{
	model.CollectionChameleonInventory: {table: "chameleon_inventory"},
	model.CollectionAdmixInventory:     {table: "admix_inventory"},
	model.CollectionConcreteDemand: {
		table: "concrete_demand",
		query: Query{Order: []OrderBy{{Column: "ship_date", Desc: true}}},
	},
	model.CollectionAsphaltDemand: {
		table: "asphalt_demand",
		query: Query{Order: []OrderBy{{Column: "ship_date", Desc: true}}},
	},
	model.CollectionRawMaterialDemands: {
		table: "raw_material_demands",
		query: Query{Order: []OrderBy{{Column: "demand_date", Desc: true}}},
	},
	model.CollectionPowderDemand: {
		table: "powder_demand",
		query: Query{Order: []OrderBy{{Column: "ship_date"}}},
	},
	model.CollectionDriverSchedule: {
		table: "driver_schedule",
		query: Query{
			Order: []OrderBy{{Column: "schedule_date", Desc: true}, {Column: "start_time"}},
			Limit: 50,
		},
	},
}

// OrderBy sorts results by one column.
type OrderBy struct {
	Column string
	Desc   bool
}

// Filter restricts results to rows where Column <Op> Value. Op defaults to "eq".
type Filter struct {
	Column string
	Op     string
	Value  string
}

// Query holds the list-fetch modifiers of one request: column selection,
// ordering, equality filters, and a row limit.
type Query struct {
	Select  []string // empty selects every column
	Order   []OrderBy
	Filters []Filter
	Limit   int // 0 = no limit
}

// DefaultQuery returns the query used for c when no override is configured.
func DefaultQuery(c model.Collection) (Query, bool) {
	ep, ok := endpoints[c]
	if !ok {
		return Query{}, false
	}
	return ep.query.clone(), true
}

// DriverScheduleFor returns the driver schedule query for a single day
// (YYYY-MM-DD), ordered by start time.
func DriverScheduleFor(date string) Query {
	return Query{
		Filters: []Filter{{Column: "schedule_date", Op: "eq", Value: date}},
		Order:   []OrderBy{{Column: "start_time"}},
	}
}

// WithFilter returns a copy of q with an additional filter.
func (q Query) WithFilter(column, op, value string) Query {
	out := q.clone()
	out.Filters = append(out.Filters, Filter{Column: column, Op: op, Value: value})
	return out
}

// WithOrder returns a copy of q with an additional sort column.
func (q Query) WithOrder(column string, desc bool) Query {
	out := q.clone()
	out.Order = append(out.Order, OrderBy{Column: column, Desc: desc})
	return out
}

// WithLimit returns a copy of q limited to n rows.
func (q Query) WithLimit(n int) Query {
	out := q.clone()
	out.Limit = n
	return out
}

func (q Query) clone() Query {
	return Query{
		Select:  slices.Clone(q.Select),
		Order:   slices.Clone(q.Order),
		Filters: slices.Clone(q.Filters),
		Limit:   q.Limit,
	}
}

func (q Query) validate() error {
	for _, s := range q.Select {
		if strings.TrimSpace(s) == "" {
			return errors.New("empty select column")
		}
	}
	for _, o := range q.Order {
		if strings.TrimSpace(o.Column) == "" {
			return errors.New("empty order column")
		}
	}
	for _, f := range q.Filters {
		if strings.TrimSpace(f.Column) == "" {
			return errors.New("empty filter column")
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("negative limit %d", q.Limit)
	}
	return nil
}

// Values encodes q as PostgREST query parameters, e.g.
// select=*&order=schedule_date.desc,start_time.asc&limit=50.
func (q Query) Values() url.Values {
	v := url.Values{}
	sel := "*"
	if len(q.Select) > 0 {
		sel = strings.Join(q.Select, ",")
	}
	v.Set("select", sel)

	if len(q.Order) > 0 {
		parts := make([]string, len(q.Order))
		for i, o := range q.Order {
			dir := "asc"
			if o.Desc {
				dir = "desc"
			}
			parts[i] = o.Column + "." + dir
		}
		v.Set("order", strings.Join(parts, ","))
	}

	for _, f := range q.Filters {
		op := f.Op
		if op == "" {
			op = "eq"
		}
		v.Add(f.Column, op+"."+f.Value)
	}

	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// FetchCollection fetches c with its configured or default query.
func (c *DefaultClient) FetchCollection(ctx context.Context, col model.Collection) ([]model.Record, error) {
	q, ok := c.config.Queries[col]
	if !ok {
		q, ok = DefaultQuery(col)
	}
	if !ok {
		return nil, &Error{Kind: KindConfig, Collection: col, Err: fmt.Errorf("unknown collection %q", col)}
	}
	return c.Fetch(ctx, col, q)
}

// Fetch fetches c with an explicit query and decodes the response,
// preserving server order. Records missing mandatory fields are skipped and
// logged; they never fail the call.
func (c *DefaultClient) Fetch(ctx context.Context, col model.Collection, q Query) ([]model.Record, error) {
	ep, ok := endpoints[col]
	if !ok {
		return nil, &Error{Kind: KindConfig, Collection: col, Err: fmt.Errorf("unknown collection %q", col)}
	}
	if err := q.validate(); err != nil {
		return nil, &Error{Kind: KindConfig, Collection: col, Err: err}
	}

	body, err := c.doGet(ctx, restPrefix+ep.table, q.Values())
	if err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			ce.Collection = col
		}
		return nil, err
	}

	res, err := model.DecodeRecords(col, body, c.now())
	if err != nil {
		return nil, &Error{Kind: KindDecode, Collection: col, Err: err}
	}
	if len(res.Skipped) > 0 {
		c.log.Warn("skipped undecodable records",
			"collection", col,
			"skipped", len(res.Skipped),
			"kept", len(res.Records),
			"first_error", res.Skipped[0].Error(),
		)
	}
	return res.Records, nil
}
