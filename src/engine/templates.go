package engine

import (
	"sort"
	"sync"

	"clipdash/src/errs"
)

// SchemaTemplate is a predefined, reusable collection-schema bundle used
// to instantiate new databases quickly.
type SchemaTemplate struct {
	Name        string
	Description string
	Stores      map[string]CollectionSchema
	Category    string
}

// TemplateCatalog holds the built-in templates plus any registered at
// runtime. Read-only from the registry's point of view: register() only
// ever copies schemas out of it.
type TemplateCatalog struct {
	mu        sync.RWMutex
	templates map[string]SchemaTemplate
}

// NewTemplateCatalog returns a catalog preloaded with the built-in
// dashboard templates.
func NewTemplateCatalog() *TemplateCatalog {
	c := &TemplateCatalog{templates: make(map[string]SchemaTemplate)}
	for _, t := range builtinTemplates() {
		c.templates[t.Name] = t
	}
	return c
}

// Get returns the named template.
func (c *TemplateCatalog) Get(name string) (SchemaTemplate, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.templates[name]
	if !ok {
		return SchemaTemplate{}, errs.Newf(errs.KindNotFound, "template %q not found", name)
	}
	return t, nil
}

// List returns all templates sorted by name.
func (c *TemplateCatalog) List() []SchemaTemplate {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]SchemaTemplate, 0, len(c.templates))
	for _, t := range c.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Register adds a custom template. The stores must pass schema validation.
func (c *TemplateCatalog) Register(t SchemaTemplate) error {
	if t.Name == "" {
		return errs.New(errs.KindValidation, "template name is empty")
	}
	if len(t.Stores) == 0 {
		return errs.Newf(errs.KindValidation, "template %q has no stores", t.Name)
	}
	for name, schema := range t.Stores {
		if err := schema.Validate(); err != nil {
			return errs.Wrap(errs.KindValidation, "store "+name, err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.templates[t.Name]; exists {
		return errs.Newf(errs.KindConflict, "template %q already exists", t.Name)
	}
	c.templates[t.Name] = t
	return nil
}

func builtinTemplates() []SchemaTemplate {
	return []SchemaTemplate{
		{
			Name:        "clipboard",
			Description: "Captured clipboard history entries",
			Category:    CategorySystem,
			Stores: map[string]CollectionSchema{
				"clipboard_history": {
					KeyPath:       "id",
					AutoIncrement: true,
					Indexes: []SecondaryIndex{
						{Name: "by_type", KeyPath: "type"},
						{Name: "by_timestamp", KeyPath: "timestamp"},
					},
				},
			},
		},
		{
			Name:        "browser",
			Description: "Imported browser bookmarks and visit history",
			Category:    CategoryBrowser,
			Stores: map[string]CollectionSchema{
				"bookmarks": {
					KeyPath:       "id",
					AutoIncrement: true,
					Indexes: []SecondaryIndex{
						{Name: "by_url", KeyPath: "url"},
						{Name: "by_folder", KeyPath: "folder"},
						{Name: "by_tag", KeyPath: "tags", MultiEntry: true},
					},
				},
				"history": {
					KeyPath:       "id",
					AutoIncrement: true,
					Indexes: []SecondaryIndex{
						{Name: "by_url", KeyPath: "url"},
						{Name: "by_visit_time", KeyPath: "visit_time"},
					},
				},
			},
		},
		{
			Name:        "contacts",
			Description: "Personal contact records",
			Category:    CategoryPersonal,
			Stores: map[string]CollectionSchema{
				"contacts": {
					KeyPath:       "id",
					AutoIncrement: true,
					Indexes: []SecondaryIndex{
						{Name: "by_name", KeyPath: "name"},
						{Name: "by_email", KeyPath: "email", Unique: true},
					},
				},
			},
		},
		{
			Name:        "notes",
			Description: "Free-form notes",
			Category:    CategoryPersonal,
			Stores: map[string]CollectionSchema{
				"notes": {
					KeyPath:       "id",
					AutoIncrement: true,
					Indexes: []SecondaryIndex{
						{Name: "by_title", KeyPath: "title"},
						{Name: "by_tag", KeyPath: "tags", MultiEntry: true},
					},
				},
			},
		},
		{
			Name:        "analysis",
			Description: "Unified analysis data built by merge",
			Category:    CategorySystem,
			Stores: map[string]CollectionSchema{
				"unified_data": {
					KeyPath:       "id",
					AutoIncrement: true,
					Indexes: []SecondaryIndex{
						{Name: "by_source", KeyPath: FieldSource},
						{Name: "by_content_type", KeyPath: FieldContentType},
						{Name: "by_unified_timestamp", KeyPath: FieldUnifiedTimestamp},
					},
				},
			},
		},
	}
}
