package mcp

// PutDocumentInput defines the input schema for the put_document tool.
type PutDocumentInput struct {
	Text      string `json:"text" jsonschema:"the document body to embed and store"`
	Filepath  string `json:"filepath" jsonschema:"the document's unique id (its source file path for file-backed documents)"`
	FileType  string `json:"file_type,omitempty" jsonschema:"free-form category used to filter searches, e.g. note, code, memo"`
	Normalize bool   `json:"normalize,omitempty" jsonschema:"L2-normalize the embedding before storage, default false"`
}

// PutDocumentOutput defines the output schema for the put_document tool.
// On failure Status is "error" and Message/ErrorType are populated;
// Details is left zero-valued.
type PutDocumentOutput struct {
	Status    string            `json:"status"`
	Message   string            `json:"message"`
	ErrorType string            `json:"error_type,omitempty"`
	Details   PutDocumentDetail `json:"details,omitempty"`
}

// PutDocumentDetail carries the operation-specific payload of a
// successful put_document call.
type PutDocumentDetail struct {
	Count            int    `json:"count"`
	Collection       string `json:"collection"`
	Filepath         string `json:"filepath"`
	VectorDimension  int    `json:"vector_dimension"`
	PersistDirectory string `json:"persist_directory"`
	Normalized       bool   `json:"normalized"`
}

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query            string `json:"query" jsonschema:"the hybrid (dense+sparse) search query"`
	TopK             int    `json:"top_k,omitempty" jsonschema:"number of fused results to return, default 5"`
	FileType         string `json:"file_type,omitempty" jsonschema:"restrict results to documents with this file_type metadata"`
	IncludeDocuments *bool  `json:"include_documents,omitempty" jsonschema:"include each result's document body, default true"`
	MaxContentLength int    `json:"max_content_length,omitempty" jsonschema:"truncate document bodies longer than this, appending an ellipsis"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Status               string             `json:"status"`
	Message              string             `json:"message"`
	ErrorType            string             `json:"error_type,omitempty"`
	Results              []SearchResultItem `json:"results,omitempty"`
	Count                int                `json:"count"`
	QueryVectorDimension int                `json:"query_vector_dimension"`
	PersistDirectory     string             `json:"persist_directory"`
}

// SearchResultItem is a single fused hybrid search hit.
type SearchResultItem struct {
	Filepath string            `json:"filepath"`
	Score    float64           `json:"score"`
	Document string            `json:"document,omitempty"`
	Metadata map[string]string `json:"metadata"`
}

// DeleteDocumentInput defines the input schema for the delete_document tool.
type DeleteDocumentInput struct {
	Filepath string `json:"filepath" jsonschema:"the id of the document to delete"`
}

// DeleteDocumentOutput defines the output schema for the delete_document tool.
type DeleteDocumentOutput struct {
	Status           string `json:"status"`
	Message          string `json:"message"`
	ErrorType        string `json:"error_type,omitempty"`
	DeletedCount     int    `json:"deleted_count"`
	Filepath         string `json:"filepath"`
	Collection       string `json:"collection"`
	PersistDirectory string `json:"persist_directory"`
}

// GetDocumentsByPrefixInput defines the input schema for the
// get_documents_by_prefix tool.
type GetDocumentsByPrefixInput struct {
	Prefix           string `json:"prefix" jsonschema:"the id prefix to match"`
	FileType         string `json:"file_type" jsonschema:"restrict results to documents with this file_type metadata"`
	IncludeDocuments *bool  `json:"include_documents,omitempty" jsonschema:"include each result's document body, default true"`
	TopK             int    `json:"top_k,omitempty" jsonschema:"maximum number of matching documents to return"`
}

// GetDocumentsByPrefixOutput defines the output schema for the
// get_documents_by_prefix tool.
type GetDocumentsByPrefixOutput struct {
	Status           string             `json:"status"`
	Message          string             `json:"message,omitempty"`
	ErrorType        string             `json:"error_type,omitempty"`
	Prefix           string             `json:"prefix"`
	FileType         string             `json:"file_type"`
	IncludeDocuments bool               `json:"include_documents"`
	TopK             int                `json:"top_k"`
	Count            int                `json:"count"`
	Results          []PrefixResultItem `json:"results,omitempty"`
}

// PrefixResultItem is a single get_documents_by_prefix hit.
type PrefixResultItem struct {
	ID       string            `json:"id"`
	Document string            `json:"document,omitempty"`
	Metadata map[string]string `json:"metadata"`
}
