package model

// Pagination represents common pagination parameters. Paging only applies
// when both Page and Limit are given.
type Pagination struct {
	Page  int `json:"page" form:"page" binding:"omitempty,gte=1"`
	Limit int `json:"limit" form:"limit" binding:"omitempty,gte=1,lte=500"`
}

func (p Pagination) Enabled() bool {
	return p.Page > 0 && p.Limit > 0
}

func (p Pagination) Offset() int {
	if !p.Enabled() {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Ptr returns nil when paging is not requested.
func (p Pagination) Ptr() *Pagination {
	if !p.Enabled() {
		return nil
	}
	return &p
}

// Page is one page of results plus the unpaged total.
type Page[T any] struct {
	Data  []T   `json:"data"`
	Total int64 `json:"total"`
}
