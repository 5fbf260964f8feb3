package models

type QueryRequest struct {
	Question string `json:"question" binding:"required"`
}
