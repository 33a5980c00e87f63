package commerce

import (
	"net/url"
	"strings"
)

// nextPageToken extracts the page_info parameter of the rel="next" entry of
// a Link header:
//
//	<https://shop.example/admin/api/2024-07/orders.json?limit=250&page_info=abc>; rel="next"
//
// Returns "" when there is no next page.
func nextPageToken(header string) string {
	if header == "" {
		return ""
	}
	for _, part := range strings.Split(header, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}
		isNext := false
		for _, param := range segments[1:] {
			if strings.EqualFold(strings.ReplaceAll(strings.TrimSpace(param), " ", ""), `rel="next"`) {
				isNext = true
				break
			}
		}
		if !isNext {
			continue
		}
		raw := strings.TrimSpace(segments[0])
		raw = strings.TrimPrefix(raw, "<")
		raw = strings.TrimSuffix(raw, ">")
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		if token := u.Query().Get("page_info"); token != "" {
			return token
		}
	}
	return ""
}
