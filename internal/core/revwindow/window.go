// Package revwindow computes which revision numbers belong on a page of the
// revision history.
package revwindow

// PageSize is the number of revisions shown per page.
const PageSize = 20

// Window returns the revisions for page (1-based) below ceiling, newest first.
// showAll returns every revision from ceiling down to 1. Pages past the end,
// page < 1 and ceiling <= 0 all yield an empty slice.
func Window(ceiling, page int, showAll bool) []int {
	return WindowSize(ceiling, page, PageSize, showAll)
}

// WindowSize is Window with an explicit page size.
func WindowSize(ceiling, page, size int, showAll bool) []int {
	if ceiling <= 0 {
		return []int{}
	}
	if showAll {
		return descending(ceiling, 1)
	}
	if page < 1 || size < 1 {
		return []int{}
	}
	upper := ceiling - (page-1)*size
	if upper < 1 {
		return []int{}
	}
	lower := max(1, ceiling-page*size+1)
	return descending(upper, lower)
}

// Pages returns the number of pages needed to show ceiling revisions.
func Pages(ceiling, size int) int {
	if ceiling <= 0 || size < 1 {
		return 0
	}
	return (ceiling + size - 1) / size
}

func descending(upper, lower int) []int {
	revs := make([]int, 0, upper-lower+1)
	for r := upper; r >= lower; r-- {
		revs = append(revs, r)
	}
	return revs
}
