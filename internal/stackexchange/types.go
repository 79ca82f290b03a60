package stackexchange

import "encoding/json"

// Owner identifies the author of a question or answer.
type Owner struct {
	UserID       int    `json:"user_id,omitempty"`
	DisplayName  string `json:"display_name"`
	Reputation   int    `json:"reputation,omitempty"`
	ProfileImage string `json:"profile_image,omitempty"`
	Link         string `json:"link,omitempty"`
}

// Question is a Stack Exchange question item. Body is present when the
// request used the withbody filter.
type Question struct {
	QuestionID       int      `json:"question_id"`
	Title            string   `json:"title"`
	Body             string   `json:"body,omitempty"`
	Tags             []string `json:"tags"`
	Owner            Owner    `json:"owner"`
	Score            int      `json:"score"`
	ViewCount        int      `json:"view_count"`
	AnswerCount      int      `json:"answer_count"`
	IsAnswered       bool     `json:"is_answered"`
	AcceptedAnswerID int      `json:"accepted_answer_id,omitempty"`
	CreationDate     int64    `json:"creation_date"`
	LastActivityDate int64    `json:"last_activity_date"`
	Link             string   `json:"link"`
}

// Answer is a Stack Exchange answer item.
type Answer struct {
	AnswerID     int    `json:"answer_id"`
	QuestionID   int    `json:"question_id"`
	Body         string `json:"body,omitempty"`
	Owner        Owner  `json:"owner"`
	Score        int    `json:"score"`
	IsAccepted   bool   `json:"is_accepted"`
	CreationDate int64  `json:"creation_date"`
	Link         string `json:"link,omitempty"`
}

// apiResponse is the common Stack Exchange envelope. Items stays raw
// so the same envelope decodes question and answer payloads. Total is
// only populated when the active filter includes it.
type apiResponse struct {
	Items          json.RawMessage `json:"items"`
	HasMore        bool            `json:"has_more"`
	Total          int             `json:"total"`
	QuotaMax       int             `json:"quota_max"`
	QuotaRemaining int             `json:"quota_remaining"`
	Backoff        int             `json:"backoff,omitempty"`
	ErrorID        int             `json:"error_id,omitempty"`
	ErrorName      string          `json:"error_name,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
}

// SearchPage is one page of question results plus the paging hints the
// API reported for it.
type SearchPage struct {
	Questions []Question `json:"questions"`
	Total     int        `json:"total"`
	HasMore   bool       `json:"has_more"`
}

// QuestionWithAnswers pairs a question with its answers for the
// combined detail operation.
type QuestionWithAnswers struct {
	Question Question `json:"question"`
	Answers  []Answer `json:"answers"`
}
