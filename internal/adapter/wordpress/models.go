package wordpress

// Post is the WordPress REST representation of a post, limited to the
// fields the sync engine maps.
type Post struct {
	ID      int64  `json:"id,omitempty"`
	Title   Text   `json:"title"`
	Content Text   `json:"content"`
	Excerpt Text   `json:"excerpt"`
	Status  string `json:"status"`
	Type    string `json:"type,omitempty"`
}

// Text matches the rendered/raw envelope WordPress wraps text fields in.
type Text struct {
	Raw      string `json:"raw,omitempty"`
	Rendered string `json:"rendered,omitempty"`
}

func (t Text) Value() string {
	if t.Raw != "" {
		return t.Raw
	}
	return t.Rendered
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
