package repo

import (
	"context"
	"sort"

	"github.com/rowandb/rowan"
	"github.com/rowandb/rowan/dao"
	"github.com/rowandb/rowan/dialect/sql"
	"github.com/rowandb/rowan/schema"
)

// CategoriesConfig returns the Category entity configuration. The
// parent and children relations are self joins over parent_id.
func CategoriesConfig() *schema.EntityConfig {
	return &schema.EntityConfig{
		Name:  "Category",
		Table: "categories",
		Columns: []*schema.Column{
			{Name: "id", Column: "id", Type: schema.TypeInteger, PrimaryKey: true, AutoIncrement: true},
			{Name: "name", Column: "name", Type: schema.TypeString},
			{Name: "parentId", Column: "parent_id", Type: schema.TypeInteger, Nullable: true},
		},
		Relations: []*schema.Relation{
			{
				Name:        "parent",
				Kind:        schema.ManyToOne,
				Target:      "Category",
				SourceField: "parentId",
				TargetField: "id",
			},
			{
				Name:        "children",
				Kind:        schema.OneToMany,
				Target:      "Category",
				SourceField: "id",
				TargetField: "parentId",
			},
		},
		Indexes: []*schema.Index{
			{Columns: []string{"parentId"}},
		},
	}
}

// Categories is the category repository.
type Categories struct {
	*dao.DAO
}

// NewCategories returns the category repository over the given adapter.
func NewCategories(a *sql.Adapter, reg *schema.Registry, opts ...dao.Option) (*Categories, error) {
	d, err := dao.New(a, reg, "Category", opts...)
	if err != nil {
		return nil, err
	}
	return &Categories{DAO: d}, nil
}

// Node is one category in a materialized tree. Children hold ids, not
// node pointers: the arena plus id indirection keeps the hierarchy free
// of reference cycles.
type Node struct {
	ID       int64
	Name     string
	ParentID *int64
	Children []int64
}

// Tree is a whole category hierarchy: an arena of nodes keyed by id and
// the ids of the roots.
type Tree struct {
	Nodes map[int64]*Node
	Roots []int64
}

// Node returns the node with the given id, or nil.
func (t *Tree) Node(id int64) *Node { return t.Nodes[id] }

// Depth returns how many edges separate the node from its root, or -1
// for an unknown id.
func (t *Tree) Depth(id int64) int {
	depth := 0
	for {
		n := t.Nodes[id]
		if n == nil {
			return -1
		}
		if n.ParentID == nil {
			return depth
		}
		id = *n.ParentID
		depth++
	}
}

// Tree materializes the whole hierarchy breadth-first: roots first, then
// level by level through the parent index, so rows whose parents were
// not reached (orphans or cycles in the data) stay out of the tree.
func (c *Categories) Tree(ctx context.Context) (*Tree, error) {
	t := &Tree{Nodes: make(map[int64]*Node)}

	frontier, err := c.FindBy(ctx, map[string]any{"parentId": nil}, &dao.FindOptions{
		Order: []dao.Order{{Field: "id"}},
	})
	if err != nil {
		return nil, err
	}
	for _, e := range frontier {
		n := newNode(e)
		t.Nodes[n.ID] = n
		t.Roots = append(t.Roots, n.ID)
	}

	for len(frontier) > 0 {
		parents := make([]int64, 0, len(frontier))
		for _, e := range frontier {
			if id, ok := e["id"].(int64); ok {
				parents = append(parents, id)
			}
		}
		frontier, err = c.FindBy(ctx, map[string]any{"parentId": parents}, &dao.FindOptions{
			Order: []dao.Order{{Field: "id"}},
		})
		if err != nil {
			return nil, err
		}
		for _, e := range frontier {
			n := newNode(e)
			if _, dup := t.Nodes[n.ID]; dup {
				// A cycle in the data would revisit a node; skip it so
				// the walk terminates.
				continue
			}
			t.Nodes[n.ID] = n
			parent := t.Nodes[*n.ParentID]
			parent.Children = append(parent.Children, n.ID)
		}
	}

	for _, n := range t.Nodes {
		sort.Slice(n.Children, func(i, j int) bool { return n.Children[i] < n.Children[j] })
	}
	return t, nil
}

func newNode(e rowan.Entity) *Node {
	n := &Node{}
	n.ID, _ = e["id"].(int64)
	n.Name, _ = e["name"].(string)
	if pid, ok := e["parentId"].(int64); ok {
		n.ParentID = &pid
	}
	return n
}

// Subtree returns the ids of the node and all its descendants in
// breadth-first order.
func (t *Tree) Subtree(id int64) []int64 {
	if t.Nodes[id] == nil {
		return nil
	}
	out := []int64{id}
	for i := 0; i < len(out); i++ {
		out = append(out, t.Nodes[out[i]].Children...)
	}
	return out
}
