package workspace

import (
	"net/url"

	"github.com/sitewarden/sitewarden/internal/common"
)

const maxPageSlugLen = 120

// pageSlug derives the filesystem-safe artefact directory name for a page
// URL: slugified host+path, truncated, disambiguated with a short hash when a
// different URL already claimed the name.
func pageSlug(pageURL string, taken map[string]string) string {
	slug := "page"
	if u, err := url.Parse(pageURL); err == nil {
		if s := common.Slugify(u.Host + u.Path); s != "" {
			slug = s
		}
	}
	if len(slug) > maxPageSlugLen {
		slug = slug[:maxPageSlugLen]
	}
	if owner, ok := taken[slug]; ok && owner != pageURL {
		slug = slug + "-" + common.ShortHash(pageURL)
	}
	taken[slug] = pageURL
	return slug
}
