package shared

type ClassifyRequest struct {
	Text            string   `json:"text"`
	CandidateLabels []string `json:"candidate_labels"`
}

type EmbedRequest struct {
	Sentences []string `json:"sentences"`
}

type ReadyResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
	Model   string `json:"model"`
}
