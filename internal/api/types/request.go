package types

// PaginationRequest represents pagination parameters in requests
type PaginationRequest struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// Normalize fills unset pagination fields with defaults.
func (p *PaginationRequest) Normalize(defaultPageSize int) {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = defaultPageSize
	}
}

// Offset converts the page number to a row offset.
func (p PaginationRequest) Offset() int {
	return (p.Page - 1) * p.PageSize
}
