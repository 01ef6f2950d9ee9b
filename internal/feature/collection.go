package feature

// Collection is the ordered feature set shared by reference between the
// map view, the attribute table and export.
type Collection struct {
	features []*Feature
	byFID    map[string]*Feature
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{byFID: make(map[string]*Feature)}
}

// Add appends features in order. Features already present are skipped.
func (c *Collection) Add(fs ...*Feature) {
	for _, f := range fs {
		if _, ok := c.byFID[f.fid]; ok {
			continue
		}
		c.byFID[f.fid] = f
		c.features = append(c.features, f)
	}
}

// Len returns the number of features.
func (c *Collection) Len() int { return len(c.features) }

// Features returns the features in insertion order. The slice is a copy,
// the features are not.
func (c *Collection) Features() []*Feature {
	return append([]*Feature(nil), c.features...)
}

// Get looks a feature up by its internal id.
func (c *Collection) Get(fid string) (*Feature, bool) {
	f, ok := c.byFID[fid]
	return f, ok
}

// FindByID returns the first feature whose "id" property equals id, or
// nil. Ids are user supplied and not unique; later duplicates are never
// returned.
func (c *Collection) FindByID(id string) *Feature {
	for _, f := range c.features {
		if v, ok := f.props[KeyID]; ok && v == id {
			return f
		}
	}

	return nil
}
