package api

import (
	"encoding/json"
	"net/http"
	"reflect"

	"github.com/invopop/jsonschema"
)

// Contract documents one collaborator endpoint.
type Contract struct {
	Name     string
	Method   string
	Path     string
	Request  interface{}
	Response interface{}
}

// Contracts lists every endpoint the client calls.
func Contracts() []Contract {
	return []Contract{
		{Name: "query", Method: http.MethodPost, Path: "/query", Request: QueryRequest{}, Response: QueryResponse{}},
		{Name: "generate", Method: http.MethodPost, Path: "/genai/generate", Request: GenerateRequest{}, Response: GenerateResponse{}},
		{Name: "recommend-videos", Method: http.MethodGet, Path: "/youtube/recommend?q={query}", Response: VideoResponse{}},
		{Name: "save-enrichment", Method: http.MethodPost, Path: "/genai/youtube-links", Request: EnrichmentRequest{}},
		{Name: "history", Method: http.MethodGet, Path: "/genai/history/{user_id}", Response: HistoryResponse{}},
		{Name: "history-page", Response: HistoryPage{}},
		{Name: "history-record", Response: HistoryRecord{}},
		{Name: "create-user", Method: http.MethodPost, Path: "/users", Request: CreateUserRequest{}, Response: CreateUserResponse{}},
		{Name: "generate-quiz", Method: http.MethodPost, Path: "/mcq/generate", Request: QuizRequest{}, Response: QuizResponse{}},
	}
}

// ContractSchema is the JSON Schema form of a Contract.
type ContractSchema struct {
	Name     string             `json:"name"`
	Method   string             `json:"method,omitempty"`
	Path     string             `json:"path,omitempty"`
	Request  *jsonschema.Schema `json:"request,omitempty"`
	Response *jsonschema.Schema `json:"response,omitempty"`
}

var rawMessageType = reflect.TypeOf(json.RawMessage{})

// NewContractReflector expands definitions inline. Raw JSON fields accept any
// value.
func NewContractReflector() *jsonschema.Reflector {
	return &jsonschema.Reflector{
		DoNotReference: true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == rawMessageType {
				return &jsonschema.Schema{}
			}
			return nil
		},
	}
}

// ContractSchemas reflects every contract.
func ContractSchemas(reflector *jsonschema.Reflector) []ContractSchema {
	if reflector == nil {
		reflector = NewContractReflector()
	}
	var ret []ContractSchema
	for _, c := range Contracts() {
		cs := ContractSchema{Name: c.Name, Method: c.Method, Path: c.Path}
		if c.Request != nil {
			cs.Request = reflector.Reflect(c.Request)
		}
		if c.Response != nil {
			cs.Response = reflector.Reflect(c.Response)
		}
		ret = append(ret, cs)
	}
	return ret
}

// JSONSchema describes the accepted timestamp forms as a date-time string.
func (Timestamp) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Format: "date-time"}
}
