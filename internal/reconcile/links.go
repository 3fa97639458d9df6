// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package reconcile

import (
	"net/url"
	"strings"
)

// nonCodeDomains are hosts that serve papers and proceedings rather than
// runnable code; links to them are citations, not code resources.
var nonCodeDomains = []string{
	"arxiv.org",
	"doi.org",
	"dl.acm.org",
	"ieeexplore.ieee.org",
	"link.springer.com",
	"sciencedirect.com",
	"openreview.net",
	"proceedings.mlr.press",
	"papers.nips.cc",
	"proceedings.neurips.cc",
	"aclanthology.org",
	"semanticscholar.org",
}

// ValidateCodeLinks keeps only well-formed http(s) URLs whose host is not
// a known paper or proceedings domain.
func ValidateCodeLinks(links []string) []string {
	var valid []string
	for _, link := range links {
		link = strings.TrimSpace(link)
		u, err := url.Parse(link)
		if err != nil {
			continue
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			continue
		}
		if u.Host == "" || isNonCodeHost(u.Host) {
			continue
		}
		valid = append(valid, link)
	}
	return valid
}

func isNonCodeHost(host string) bool {
	host = strings.ToLower(host)
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	for _, domain := range nonCodeDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
