package types

import "testing"

func TestNewPaginationResponse(t *testing.T) {
	tests := []struct {
		name      string
		page      int
		pageSize  int
		total     int64
		wantPages int
	}{
		{"exact pages", 1, 50, 100, 2},
		{"partial last page", 2, 50, 101, 3},
		{"empty result", 1, 50, 0, 0},
		{"single row", 1, 50, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPaginationResponse(tt.page, tt.pageSize, tt.total)
			if p.TotalPages != tt.wantPages {
				t.Errorf("TotalPages = %d, want %d", p.TotalPages, tt.wantPages)
			}
			if p.Page != tt.page || p.PageSize != tt.pageSize || p.Total != tt.total {
				t.Errorf("metadata = %+v, want page %d size %d total %d", p, tt.page, tt.pageSize, tt.total)
			}
		})
	}
}

func TestPaginationRequest(t *testing.T) {
	t.Run("normalize fills defaults", func(t *testing.T) {
		var req PaginationRequest
		req.Normalize(50)
		if req.Page != 1 || req.PageSize != 50 {
			t.Errorf("normalized = %+v, want page 1 size 50", req)
		}
	})

	t.Run("normalize keeps explicit values", func(t *testing.T) {
		req := PaginationRequest{Page: 3, PageSize: 20}
		req.Normalize(50)
		if req.Page != 3 || req.PageSize != 20 {
			t.Errorf("normalized = %+v, want page 3 size 20", req)
		}
	})

	t.Run("offset", func(t *testing.T) {
		req := PaginationRequest{Page: 3, PageSize: 20}
		if got := req.Offset(); got != 40 {
			t.Errorf("Offset() = %d, want 40", got)
		}
	})
}
