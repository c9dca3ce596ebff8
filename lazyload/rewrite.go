package lazyload

import (
	"io"

	"github.com/hazyhaar/lazyload/lazyload/internal/placeholder"
)

// Rewrite materializes every <noscript> placeholder of the HTML document
// read from r into a lazy <img>, the same way Start does in a browser,
// and writes the document to w. It returns the number of placeholders
// rewritten.
func Rewrite(r io.Reader, w io.Writer, opts Options) (int, error) {
	opts.defaults()
	m := placeholder.New(placeholder.Options{
		LazyClass:   opts.LazyClass,
		Placeholder: opts.Placeholder,
		AttList:     opts.AttList,
		MinHeight:   opts.MinHeight,
	})
	return m.Rewrite(r, w)
}
