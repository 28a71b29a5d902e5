package visibility

import (
	iradix "github.com/hashicorp/go-immutable-radix/v2"

	"github.com/agentx-labs/unitcore/internal/manifest"
)

// prefixSet is an immutable set of package exports keyed by resource prefix.
// The value records whether the prefix also covers subpackages.
type prefixSet struct {
	tree *iradix.Tree[bool]
}

func newPrefixSet(groups ...[]manifest.PackageExport) prefixSet {
	return prefixSet{tree: iradix.New[bool]()}.with(groups...)
}

// with returns a set holding s's members plus groups.
func (s prefixSet) with(groups ...[]manifest.PackageExport) prefixSet {
	txn := s.tree.Txn()
	for _, g := range groups {
		for _, p := range g {
			old, _ := txn.Get([]byte(p.Prefix))
			txn.Insert([]byte(p.Prefix), old || p.Recursive)
		}
	}
	return prefixSet{tree: txn.Commit()}
}

func (s prefixSet) empty() bool {
	return s.tree == nil || s.tree.Len() == 0
}

// matches reports whether resource package pkg ("org/foo/") is covered.
func (s prefixSet) matches(pkg string) bool {
	if s.empty() {
		return false
	}
	found := false
	s.tree.Root().WalkPath([]byte(pkg), func(k []byte, recursive bool) bool {
		if recursive || len(k) == len(pkg) {
			found = true
		}
		return found
	})
	return found
}
