package types

// PaginationResponse carries paging metadata alongside a list payload
type PaginationResponse struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// NewPaginationResponse derives the page count from the total row count.
func NewPaginationResponse(page, pageSize int, total int64) *PaginationResponse {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return &PaginationResponse{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
	}
}

// Response is the envelope every endpoint answers with
type Response struct {
	Success    bool                `json:"success"`
	Data       interface{}         `json:"data,omitempty"`
	Error      *Error              `json:"error,omitempty"`
	Pagination *PaginationResponse `json:"pagination,omitempty"`
}

// SuccessResponse wraps data in a successful envelope
func SuccessResponse(data interface{}) Response {
	return Response{
		Success: true,
		Data:    data,
	}
}

// SuccessResponseWithPagination wraps one page of data together with its
// paging metadata
func SuccessResponseWithPagination(data interface{}, pagination *PaginationResponse) Response {
	return Response{
		Success:    true,
		Data:       data,
		Pagination: pagination,
	}
}
