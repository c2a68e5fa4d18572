// Package viewport partitions scanned text nodes by their position relative
// to the visible area. Users read top-down: translating what is on screen
// first minimises perceived latency.
package viewport

import (
	"math"
	"sort"

	"github.com/MikkoParkkola/translate-browser-extension-sub004/dom"
)

// Partition splits nodes into those whose parent box intersects the
// viewport and those below the fold, the latter sorted ascending by top
// offset. Exactly one layout query per node; a failed query (detached node)
// sorts last with an unbounded offset.
func Partition(doc *dom.Document, nodes []dom.Node, viewportHeight int) (inView, belowFold []dom.Node) {
	type positioned struct {
		node dom.Node
		top  int
	}
	scrollY := doc.ScrollY()
	var below []positioned
	for _, n := range nodes {
		box, err := n.BoundingBox()
		if err != nil {
			below = append(below, positioned{node: n, top: math.MaxInt})
			continue
		}
		if box.Top < scrollY+viewportHeight && box.Top+box.Height > scrollY {
			inView = append(inView, n)
			continue
		}
		below = append(below, positioned{node: n, top: box.Top})
	}
	sort.SliceStable(below, func(i, j int) bool { return below[i].top < below[j].top })
	belowFold = make([]dom.Node, len(below))
	for i, p := range below {
		belowFold[i] = p.node
	}
	return inView, belowFold
}
