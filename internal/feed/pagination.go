package feed

// PageWindow describes the visible slice of the buffer.
type PageWindow struct {
	PageSize    int `json:"pageSize"`
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
}

// TotalPages returns ceil(n/size), never less than one.
func TotalPages(n, size int) int {
	if size <= 0 || n <= 0 {
		return 1
	}
	return (n + size - 1) / size
}

// ComputeWindow clamps the requested page into [1, TotalPages(n, size)].
func ComputeWindow(n, size, requested int) PageWindow {
	total := TotalPages(n, size)
	page := requested
	if page < 1 {
		page = 1
	}
	if page > total {
		page = total
	}
	return PageWindow{PageSize: size, CurrentPage: page, TotalPages: total}
}

// Slice returns the records of the window's current page. The result shares
// storage with buf.
func Slice(buf []TraceRecord, w PageWindow) []TraceRecord {
	if w.PageSize <= 0 || w.CurrentPage < 1 {
		return nil
	}
	start := (w.CurrentPage - 1) * w.PageSize
	if start >= len(buf) {
		return nil
	}
	end := start + w.PageSize
	if end > len(buf) {
		end = len(buf)
	}
	return buf[start:end]
}
