// Package footer makes sure every published page carries the standard site footer.
//
// Detection is a textual pattern match, not an HTML parse. Nested or malformed
// footer tags are not disambiguated: the pattern pairs each opening <footer ...>
// with the nearest following </footer>.
package footer

import (
	"regexp"
	"strings"
)

// Marker is the case-insensitive brand string the last footer must contain
// for a page to count as already branded.
const Marker = "boxshop"

// Fragment is spliced in before </body> when a page lacks a branded footer.
const Fragment = `
<footer>
  <p class="to-top">
    <a href="#" id="moveTop">↑ Move to Top</a>
  </p>
  <p>&copy; 2025 BoxShop, Inc. &middot; All rights reserved. Contact: hello@boxshop.io</p>
</footer>

<style>
  body {
    margin: 0;
    padding-bottom: 100px;
    font-family: Arial, sans-serif;
  }
  footer {
    position: fixed;
    bottom: 0;
    left: 0;
    width: 100%;
    background-color: #222;
    color: #ccc;
    text-align: center;
    padding: 1em 1em;
    font-size: 0.9rem;
    box-shadow: 0 -2px 8px rgba(0, 0, 0, 0.3);
  }
  footer a {
    color: #4da3ff;
    text-decoration: none;
    transition: color 0.2s ease;
  }
  footer a:hover {
    color: #fff;
    text-decoration: underline;
  }
  .to-top {
    margin: 0 0 0.3em 0;
  }
  #moveTop {
    font-weight: bold;
  }
</style>

<script>
  document.addEventListener("DOMContentLoaded", function() {
    var topLink = document.getElementById("moveTop");
    if (topLink) {
      topLink.addEventListener("click", function(e) {
        e.preventDefault();
        window.scrollTo({ top: 0, behavior: "smooth" });
      });
    }
  });
</script>
`

// (?is): case-insensitive, dot matches newline. Both quantifiers are lazy so
// consecutive footers are matched separately.
var footerRE = regexp.MustCompile(`(?is)<footer.*?>.*?</footer>`)

const closeBody = "</body>"

// Decision explains why Enrich did or did not add the footer.
type Decision string

const (
	// NoFooter means the page had no footer at all.
	NoFooter Decision = "no_footer"
	// Unbranded means the last footer does not mention the marker.
	Unbranded Decision = "unbranded"
	// Branded means the last footer already mentions the marker.
	Branded Decision = "branded"
)

// Added reports whether the decision results in the fragment being added.
func (d Decision) Added() bool { return d != Branded }

// Enricher injects Fragment into pages whose last footer lacks Marker.
// The zero value uses the package defaults.
type Enricher struct {
	Marker   string
	Fragment string
}

// Default is the enricher used for published pages.
var Default = Enricher{Marker: Marker, Fragment: Fragment}

func (e Enricher) marker() string {
	if e.Marker == "" {
		return Marker
	}
	return e.Marker
}

func (e Enricher) fragment() string {
	if e.Fragment == "" {
		return Fragment
	}
	return e.Fragment
}

// Inspect decides whether html needs the footer without modifying it.
func (e Enricher) Inspect(html string) Decision {
	matches := footerRE.FindAllString(html, -1)
	if len(matches) == 0 {
		return NoFooter
	}
	last := matches[len(matches)-1]
	if strings.Contains(strings.ToLower(last), strings.ToLower(e.marker())) {
		return Branded
	}
	return Unbranded
}

// Enrich returns html with the footer fragment inserted before the last
// closing body tag (or appended when there is none), and the decision taken.
// Pages whose last footer already carries the marker are returned unchanged.
func (e Enricher) Enrich(html string) (string, Decision) {
	d := e.Inspect(html)
	if !d.Added() {
		return html, d
	}
	return Splice(html, e.fragment()), d
}

// Splice inserts frag immediately before the last case-insensitive </body>
// in html, or appends it when html has no closing body tag.
func Splice(html, frag string) string {
	// ToLower can change byte length for some non-ASCII runes, so search with
	// an ASCII-only fold to keep indexes aligned with the original string.
	i := lastIndexFoldASCII(html, closeBody)
	if i < 0 {
		return html + frag
	}
	var b strings.Builder
	b.Grow(len(html) + len(frag))
	b.WriteString(html[:i])
	b.WriteString(frag)
	b.WriteString(html[i:])
	return b.String()
}

func lastIndexFoldASCII(s, sub string) int {
	n := len(sub)
	for i := len(s) - n; i >= 0; i-- {
		if equalFoldASCII(s[i:i+n], sub) {
			return i
		}
	}
	return -1
}

func equalFoldASCII(a, b string) bool {
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
