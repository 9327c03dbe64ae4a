package logsapi

import "applogs/internal/models"

const defaultPageSize = 20

// halPage decodes both the Spring HATEOAS envelope and an already flat page.
type halPage struct {
	Content  []models.LogRecord `json:"content"`
	Embedded *struct {
		AppLogList []models.LogRecord `json:"appLogList"`
	} `json:"_embedded"`
	Page *struct {
		Size          int   `json:"size"`
		TotalElements int64 `json:"totalElements"`
		TotalPages    int   `json:"totalPages"`
		Number        int   `json:"number"`
	} `json:"page"`

	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	Size          int   `json:"size"`
	Number        int   `json:"number"`
}

func (h halPage) flatten() models.Page {
	if h.Content != nil {
		return models.Page{
			Content:       h.Content,
			TotalElements: h.TotalElements,
			TotalPages:    h.TotalPages,
			Size:          h.Size,
			Number:        h.Number,
		}
	}

	out := models.Page{Content: []models.LogRecord{}, Size: defaultPageSize}
	if h.Embedded != nil && h.Embedded.AppLogList != nil {
		out.Content = h.Embedded.AppLogList
	}
	if h.Page != nil {
		out.TotalElements = h.Page.TotalElements
		out.TotalPages = h.Page.TotalPages
		out.Number = h.Page.Number
		if h.Page.Size > 0 {
			out.Size = h.Page.Size
		}
	}
	return out
}
