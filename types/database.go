package types

import (
	"context"
)

// DatabaseManager is the durable record store managers run on. The cache
// subsystem never talks to it directly; ORM capabilities do, tracking every
// filter they evaluate.
type DatabaseManager interface {
	LifecycleManager
	CreateCollection(collectionName string) error
	DropCollection(collectionName string) error
	CreateDocuments(ctx context.Context, request CreateDocumentsRequest) ([]string, error)
	ReadDocuments(ctx context.Context, request ReadDocumentsRequest) ([]map[string]interface{}, int64, error)
	UpdateDocuments(ctx context.Context, request UpdateDocumentsRequest) (int64, error)
	DeleteDocuments(ctx context.Context, request DeleteDocumentsRequest) (int64, error)
}

type DatabaseManagerCreator func(config interface{}) (DatabaseManager, error)

type CreateDocumentsRequest struct {
	Collection string        `json:"collection"`
	Data       []interface{} `json:"data"`
}

type ReadDocumentsRequest struct {
	Collection string                 `json:"collection"`
	Filter     map[string]interface{} `json:"filter"`
	Sort       map[string]int         `json:"sort"`
	Skip       int                    `json:"skip"`
	Limit      int                    `json:"limit"`
}

type UpdateDocumentsRequest struct {
	Collection string                 `json:"collection"`
	Filter     map[string]interface{} `json:"filter"`
	Data       interface{}            `json:"data"`
	Upsert     bool                   `json:"upsert"`
}

type DeleteDocumentsRequest struct {
	Collection string                 `json:"collection"`
	Filter     map[string]interface{} `json:"filter"`
}
