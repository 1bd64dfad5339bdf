package models

type CheckResponse struct {
	Results *QueryResult `json:"results"`
}

type ExplanationResponse struct {
	Results      *QueryResult  `json:"results"`
	Explanations []Explanation `json:"explanations"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
