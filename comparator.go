// This file contains the sort key comparator used to merge results.

package clustercursor

import (
	"strings"

	"github.com/globalsign/mgo/bson"
)

// SortKeyField is the name of the metadata field shards attach to their
// results, holding the sort key extracted for the merge.
const SortKeyField = "$sortKey"

// SortPattern builds a sort pattern document from the provided field names.
// A field name may be prefixed with '-' for descending or '+' (optional)
// for ascending order. Empty names are ignored.
func SortPattern(fields ...string) bson.D {
	sort := make(bson.D, 0, len(fields))
	for _, field := range fields {
		if field == "" {
			continue
		}
		n := 1
		if field[0] == '+' {
			field = field[1:]
		} else if field[0] == '-' {
			n, field = -1, field[1:]
		}
		sort = append(sort, bson.DocElem{Name: field, Value: n})
	}
	return sort
}

// wholeSortKeyPattern is the only pattern allowed when comparing whole sort keys.
var wholeSortKeyPattern = bson.D{{Name: SortKeyField, Value: 1}}

// SortKeyComparator orders results by the sort key extracted from them.
type SortKeyComparator struct {
	// pattern is the sort pattern; its field names are used to extract
	// keys from results carrying no $sortKey.
	pattern bson.D

	// directions holds 1 (ascending) or -1 (descending) for each pattern field.
	directions []int

	// wholeKey tells if $sortKey is a single scalar rather than a document.
	wholeKey bool
}

// NewSortKeyComparator creates a comparator for the given sort pattern.
// With compareWholeSortKey the pattern must be {$sortKey: 1}.
func NewSortKeyComparator(pattern bson.D, compareWholeSortKey bool) (*SortKeyComparator, error) {
	if len(pattern) == 0 {
		return nil, configErrorf("sort pattern must not be empty")
	}

	directions := make([]int, len(pattern))
	for i, e := range pattern {
		dir, ok := sortDirection(e.Value)
		if !ok {
			return nil, configErrorf("invalid sort direction for field %q: %v", e.Name, e.Value)
		}
		directions[i] = dir
	}

	if compareWholeSortKey && !isWholeSortKeyPattern(pattern) {
		return nil, configErrorf("comparing whole sort keys requires sort pattern %v, got %v",
			wholeSortKeyPattern, pattern)
	}

	return &SortKeyComparator{
		pattern:    pattern,
		directions: directions,
		wholeKey:   compareWholeSortKey,
	}, nil
}

func isWholeSortKeyPattern(pattern bson.D) bool {
	if len(pattern) != 1 || pattern[0].Name != SortKeyField {
		return false
	}
	i, f, isInt := numberOf(pattern[0].Value)
	if isInt {
		return i == 1
	}
	return f == 1
}

// sortDirection returns the direction of a sort pattern value.
// Numbers give their sign, {$meta: ...} sorts descending.
func sortDirection(v interface{}) (dir int, ok bool) {
	if canonicalRank(v) == rankNumber {
		i, f, isInt := numberOf(v)
		if isInt {
			f = float64(i)
		}
		switch {
		case f > 0:
			return 1, true
		case f < 0:
			return -1, true
		}
		return 0, false
	}
	if canonicalRank(v) == rankObject {
		doc := docOf(v)
		if len(doc) == 1 && doc[0].Name == "$meta" {
			return -1, true
		}
	}
	return 0, false
}

// ExtractKey returns the sort key of a result document.
//
// If the document carries $sortKey, its value is used: a single scalar when
// comparing whole sort keys, else a document whose values line up with the
// pattern fields. Otherwise the key is taken from the document itself
// following the (dotted) pattern field names. Missing values are null.
func (c *SortKeyComparator) ExtractKey(doc bson.D) []interface{} {
	if sk, ok := lookupField(doc, SortKeyField); ok {
		if c.wholeKey {
			return []interface{}{sk}
		}
		if canonicalRank(sk) == rankObject {
			skDoc := docOf(sk)
			key := make([]interface{}, len(c.pattern))
			for i := range key {
				if i < len(skDoc) {
					key[i] = skDoc[i].Value
				}
			}
			return key
		}
		return []interface{}{sk}
	}

	key := make([]interface{}, len(c.pattern))
	for i, e := range c.pattern {
		key[i], _ = lookupPath(doc, e.Name)
	}
	return key
}

// Compare compares 2 extracted sort keys field by field, respecting the
// direction of each field. The first non-equal field decides.
func (c *SortKeyComparator) Compare(a, b []interface{}) int {
	for i, dir := range c.directions {
		var va, vb interface{}
		if i < len(a) {
			va = a[i]
		}
		if i < len(b) {
			vb = b[i]
		}
		if r := compareValues(va, vb); r != 0 {
			return r * dir
		}
	}
	return 0
}

// CompareDocs extracts the sort keys of 2 documents and compares them.
func (c *SortKeyComparator) CompareDocs(a, b bson.D) int {
	return c.Compare(c.ExtractKey(a), c.ExtractKey(b))
}

// lookupField returns the value of a top-level field of doc.
func lookupField(doc bson.D, name string) (interface{}, bool) {
	for _, e := range doc {
		if e.Name == name {
			return e.Value, true
		}
	}
	return nil, false
}

// lookupPath returns the value at a dotted path inside doc.
func lookupPath(doc bson.D, path string) (interface{}, bool) {
	var cur interface{} = doc
	for _, part := range strings.Split(path, ".") {
		if canonicalRank(cur) != rankObject {
			return nil, false
		}
		v, ok := lookupField(docOf(cur), part)
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// removeField returns doc without the named top-level field.
// doc is returned as-is if it has no such field.
func removeField(doc bson.D, name string) bson.D {
	for i, e := range doc {
		if e.Name == name {
			out := make(bson.D, 0, len(doc)-1)
			out = append(out, doc[:i]...)
			return append(out, doc[i+1:]...)
		}
	}
	return doc
}
