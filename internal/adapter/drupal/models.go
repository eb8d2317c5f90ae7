package drupal

// articleEnvelope is the native entity shape the Drupal site's content API
// exchanges: the article nested under a single top-level key.
type articleEnvelope struct {
	Article Article `json:"article"`
}

type Article struct {
	ID      string `json:"id,omitempty"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	Summary string `json:"summary"`
	Status  bool   `json:"status"`
	Type    string `json:"type,omitempty"`
}

type errorResponse struct {
	Message string `json:"message"`
}
