package db

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	Vector       []float32
	K            int
	ReturnFields []string
}

// TextQuery is the input for full-text keyword search. Tokens are OR-ed;
// each token is escaped before it reaches the query string.
type TextQuery struct {
	IndexName    string
	Field        string
	Tokens       []string
	TopK         int
	ReturnFields []string
}

// PrefixQuery is the input for tag-prefix lookup (code subtree fetch).
type PrefixQuery struct {
	IndexName    string
	Field        string
	Prefix       string
	Limit        int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
