package catalog

import "github.com/voyagen/iptvcatalog/internal/models"

// CategorySet maps provider category ids to categories, keeping first-seen
// order so inserts are deterministic.
type CategorySet struct {
	order []string
	byID  map[string]models.Category
}

// NewCategorySet returns an empty set.
func NewCategorySet() *CategorySet {
	return &CategorySet{byID: make(map[string]models.Category)}
}

// Put adds c. An existing entry with the same id is overwritten in place.
func (s *CategorySet) Put(c models.Category) {
	if _, ok := s.byID[c.CategoryID]; !ok {
		s.order = append(s.order, c.CategoryID)
	}
	s.byID[c.CategoryID] = c
}

// Lookup returns the category with the given provider id.
func (s *CategorySet) Lookup(id string) (models.Category, bool) {
	if s == nil {
		return models.Category{}, false
	}
	c, ok := s.byID[id]
	return c, ok
}

// Merge puts every category of other into s, in other's order.
func (s *CategorySet) Merge(other *CategorySet) {
	if other == nil {
		return
	}
	for _, id := range other.order {
		s.Put(other.byID[id])
	}
}

// Len returns the number of categories.
func (s *CategorySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// List returns the categories in insertion order.
func (s *CategorySet) List() []models.Category {
	if s == nil {
		return nil
	}
	out := make([]models.Category, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// categoryBuckets is the iteration order over the nested "categories"
// object. A category id present in several buckets ends up with the kind of
// the last bucket that contains it.
var categoryBuckets = []struct {
	key  string
	kind models.ContentKind
}{
	{"live", models.KindLive},
	{"movie", models.KindMovie},
	{"vod", models.KindMovie},
	{"series", models.KindSeries},
}

// ExtractCategories builds the category mapping of a payload. Entries
// without an id or a name are skipped.
func ExtractCategories(p *Payload) *CategorySet {
	return ExtractCategoriesAs(p, models.KindLive)
}

// ExtractCategoriesAs is ExtractCategories with the kind assigned to
// flat-array entries, for per-kind category endpoints.
func ExtractCategoriesAs(p *Payload, flatKind models.ContentKind) *CategorySet {
	set := NewCategorySet()
	if p == nil {
		return set
	}
	switch p.Format {
	case FormatNestedCategories:
		nested, _ := p.Object.Object("categories")
		for _, b := range categoryBuckets {
			entries, ok := nested.Array(b.key)
			if !ok {
				continue
			}
			for _, el := range entries {
				if c, ok := categoryFrom(el, b.kind, true); ok {
					set.Put(c)
				}
			}
		}
	case FormatFlatArray:
		for _, el := range p.Array {
			if c, ok := categoryFrom(el, flatKind, false); ok {
				set.Put(c)
			}
		}
	}
	return set
}

func categoryFrom(el any, kind models.ContentKind, withParent bool) (models.Category, bool) {
	obj, ok := el.(map[string]any)
	if !ok {
		return models.Category{}, false
	}
	rec := Record(obj)
	id, ok := rec.NonEmptyString("category_id")
	if !ok {
		return models.Category{}, false
	}
	name, ok := rec["category_name"].(string)
	if !ok {
		return models.Category{}, false
	}
	c := models.Category{CategoryID: id, Name: name, Kind: kind}
	if withParent {
		if pid, ok := rec.Int("parent_id"); ok {
			c.ParentID = &pid
		}
	}
	return c, true
}
