package dto

import "github.com/ahmetcoskunkizilkaya/plainnow-backend/internal/models"

type AnalyzeRequest struct {
	Text        string `json:"text"`
	FileContent string `json:"fileContent"`
	FileType    string `json:"fileType"`
	FileName    string `json:"fileName"`
	Style       string `json:"style"`
}

type AnalyzeResponse struct {
	Document *models.Document `json:"document"`
	Credits  int              `json:"credits"`
}

type CreditsResponse struct {
	Credits        int `json:"credits"`
	DailyAllowance int `json:"dailyAllowance"`
}

type DocumentListResponse struct {
	Documents []models.Document `json:"documents"`
	Total     int64             `json:"total"`
	Page      int               `json:"page"`
	PageSize  int               `json:"pageSize"`
}
