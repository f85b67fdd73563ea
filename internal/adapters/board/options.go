package board

// Option applies a configuration option to the Catalog.
type Option func(*Catalog)

// WithBoards seeds the catalog with boards.
func WithBoards(boards ...Board) Option {
	return func(c *Catalog) {
		for _, b := range boards {
			c.boards[b.ID] = b
		}
	}
}
