package s3

type Document struct {
	ID   string       `json:"id"`
	Data []byte       `json:"data"`
	Kind DocumentKind `json:"kind"`
	Type DocumentType `json:"type"`
}

type DocumentKind string

const (
	DocumentKindCSV DocumentKind = "csv"
)

type DocumentType string

const (
	DocumentTypeBatchExport DocumentType = "batch_export"
)

func NewCSVDocument(id string, data []byte, docType DocumentType) *Document {
	return &Document{
		ID:   id,
		Data: data,
		Kind: DocumentKindCSV,
		Type: docType,
	}
}
