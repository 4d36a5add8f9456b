package model

// SelectRequest selects an object store input for the session
type SelectRequest struct {
	Ref string `json:"ref" validate:"required,startswith=s3://"`
}

// RegisterModelRequest is the query of POST /api/models
type RegisterModelRequest struct {
	Name string `query:"name" validate:"required,max=128"`
}
